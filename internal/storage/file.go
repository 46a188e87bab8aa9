package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "wakealert/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.flags.snapshot.json (periodic snapshot)
//   - <prefix>.flags.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery new flags
// and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	flags        map[string]time.Time

	writes       int
	compactEvery int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".flags.snapshot.json"
	journalPath := prefix + ".flags.journal.jsonl"

	flags := map[string]time.Time{}
	if err := loadSnapshot(snapPath, flags); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("flag snapshot unreadable; relying on journal", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, flags); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("flag journal replay incomplete", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		flags:        flags,
		compactEvery: 200,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	if s.writes > 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("flag compact on close failed", logx.Err(err))
		}
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Flag(ctx context.Context, key string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return false, ErrClosed
	}
	_, ok := s.flags[normalizeKey(key)]
	return ok, nil
}

func (s *fileStore) SetFlag(ctx context.Context, key string) error {
	_ = ctx
	key = normalizeKey(key)
	if key == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	if _, ok := s.flags[key]; ok {
		return nil
	}
	rec := FlagRecord{Key: key, SetAt: time.Now().UTC()}

	// Journal first so a crash between the two steps never loses a flag
	// the caller was told is set.
	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return err
	}
	if err := s.journalFile.Sync(); err != nil {
		return err
	}
	s.flags[key] = rec.SetAt

	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("flag compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Flags(ctx context.Context, prefix string) ([]FlagRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrClosed
	}
	return collectFlags(s.flags, prefix), nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.flags); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]time.Time
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r FlagRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn tail write; keep what we have
			continue
		}
		if r.Key == "" {
			continue
		}
		if _, ok := out[r.Key]; !ok {
			out[r.Key] = r.SetAt
		}
	}
	return sc.Err()
}
