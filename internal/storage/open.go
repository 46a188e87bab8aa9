package storage

import (
	"context"
	"errors"
	"strings"

	logx "wakealert/pkg/logx"
)

// Store is the minimal persistence API used by the engine.
type Store interface {
	// Flag reports whether key has been set.
	Flag(ctx context.Context, key string) (bool, error)
	// SetFlag sets key. Setting an already-set key is a no-op.
	SetFlag(ctx context.Context, key string) error
	// Flags lists set keys with the given prefix ("" lists everything).
	Flags(ctx context.Context, prefix string) ([]FlagRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func normalizeKey(key string) string { return strings.TrimSpace(key) }
