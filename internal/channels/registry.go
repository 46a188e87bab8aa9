package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"wakealert/internal/eventbus"
	"wakealert/internal/storage"
	logx "wakealert/pkg/logx"
)

// ErrUnsupported is returned by a Manager on OS versions without channels.
var ErrUnsupported = errors.New("channels: not supported on this OS version")

// Live is a channel as currently registered with the OS.
type Live struct {
	ID         string
	Importance Importance
}

// Manager is the host's notification-channel API.
type Manager interface {
	Supported(ctx context.Context) bool
	Channel(ctx context.Context, id string) (Live, bool, error)
	Create(ctx context.Context, d Descriptor) error
	Delete(ctx context.Context, id string) error
}

// Ledger persists the fingerprint each channel id was created with.
// storage.Store satisfies it.
type Ledger interface {
	SetFlag(ctx context.Context, key string) error
	Flags(ctx context.Context, prefix string) ([]storage.FlagRecord, error)
}

// Report describes one EnsureChannels pass.
type Report struct {
	Unsupported bool     `json:"unsupported,omitempty"`
	Created     []string `json:"created,omitempty"`
	Recreated   []string `json:"recreated,omitempty"`
	Unchanged   []string `json:"unchanged,omitempty"`
	Drifted     []string `json:"drifted,omitempty"`
}

// Registry is the ChannelDescriptorRegistry.
type Registry struct {
	mgr    Manager
	ledger Ledger
	bus    eventbus.Bus
	log    logx.Logger

	set    []Descriptor
	byRole map[Role]Descriptor

	// serializes passes; concurrent callers must not interleave delete/create.
	mu sync.Mutex
}

type Option func(*Registry)

func WithLedger(l Ledger) Option      { return func(r *Registry) { r.ledger = l } }
func WithBus(b eventbus.Bus) Option   { return func(r *Registry) { r.bus = b } }
func WithLogger(l logx.Logger) Option { return func(r *Registry) { r.log = l } }
func WithSet(set []Descriptor) Option { return func(r *Registry) { r.set = set } }

// NewRegistry validates the descriptor set (Canonical by default).
func NewRegistry(mgr Manager, opts ...Option) (*Registry, error) {
	if mgr == nil {
		return nil, errors.New("channels: nil manager")
	}
	r := &Registry{mgr: mgr}
	for _, o := range opts {
		o(r)
	}
	if r.set == nil {
		r.set = Canonical()
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if err := ValidateSet(r.set); err != nil {
		return nil, err
	}
	r.byRole = make(map[Role]Descriptor, len(r.set))
	for _, d := range r.set {
		r.byRole[d.Role] = d
	}
	return r, nil
}

// Descriptors returns the descriptor set in registration order.
func (r *Registry) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.set...)
}

// ForRole returns the descriptor serving role.
func (r *Registry) ForRole(role Role) Descriptor {
	return r.byRole[role]
}

// EnsureChannels creates missing channels and replaces any whose importance
// has fallen below the descriptor's. It is idempotent: a second call with
// an unchanged set and OS state changes nothing. Channel ids outside the set
// are never touched.
//
// Per-channel failures are logged and joined into the returned error; the
// pass continues with the next descriptor.
func (r *Registry) EnsureChannels(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rep Report
	if !r.mgr.Supported(ctx) {
		rep.Unsupported = true
		r.log.Debug("notification channels unsupported; sound and vibration go per alert")
		return rep, nil
	}

	var errs []error
	for _, d := range r.set {
		outcome, err := r.ensureOne(ctx, d)
		if err != nil {
			if errors.Is(err, ErrUnsupported) {
				rep.Unsupported = true
				return rep, nil
			}
			r.log.Warn("channel ensure failed", logx.String("channel", d.ID), logx.Err(err))
			errs = append(errs, fmt.Errorf("channel %s: %w", d.ID, err))
			continue
		}
		switch outcome {
		case "created":
			rep.Created = append(rep.Created, d.ID)
		case "recreated":
			rep.Recreated = append(rep.Recreated, d.ID)
		default:
			rep.Unchanged = append(rep.Unchanged, d.ID)
		}
		if r.checkLedger(ctx, d) {
			rep.Drifted = append(rep.Drifted, d.ID)
		}
	}

	if len(rep.Created) > 0 || len(rep.Recreated) > 0 {
		r.log.Info("notification channels ensured",
			logx.Strings("created", rep.Created),
			logx.Strings("recreated", rep.Recreated),
		)
		eventbus.Publish(r.bus, eventbus.TypeChannelsEnsured, rep)
	}
	return rep, errors.Join(errs...)
}

func (r *Registry) ensureOne(ctx context.Context, d Descriptor) (string, error) {
	live, ok, err := r.mgr.Channel(ctx, d.ID)
	if err != nil {
		return "", err
	}
	if ok && live.Importance >= d.Importance {
		return "unchanged", nil
	}
	if ok {
		// Importance regressed; the OS ignores updates on a live id, so the
		// only repair is to drop it and register it again.
		r.log.Warn("channel importance regressed; recreating",
			logx.String("channel", d.ID),
			logx.String("live", live.Importance.String()),
			logx.String("want", d.Importance.String()),
		)
		if err := r.mgr.Delete(ctx, d.ID); err != nil {
			return "", fmt.Errorf("delete: %w", err)
		}
	}
	if err := r.mgr.Create(ctx, d); err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	if ok {
		return "recreated", nil
	}
	return "created", nil
}

func ledgerPrefix(id string) string { return "channel." + id + "." }

// checkLedger records the descriptor fingerprint and reports whether the
// same id was previously created from a different descriptor.
func (r *Registry) checkLedger(ctx context.Context, d Descriptor) bool {
	if r.ledger == nil {
		return false
	}
	fp := d.Fingerprint()
	recs, err := r.ledger.Flags(ctx, ledgerPrefix(d.ID))
	if err != nil {
		r.log.Debug("channel ledger read failed", logx.String("channel", d.ID), logx.Err(err))
		return false
	}
	drifted := false
	seen := false
	for _, rec := range recs {
		got := strings.TrimPrefix(rec.Key, ledgerPrefix(d.ID))
		if got == fp {
			seen = true
			continue
		}
		drifted = true
	}
	if drifted {
		r.log.Error("channel descriptor changed without an id bump; existing installs keep the old settings",
			logx.String("channel", d.ID),
			logx.String("fingerprint", fp),
		)
	}
	if !seen {
		if err := r.ledger.SetFlag(ctx, ledgerPrefix(d.ID)+fp); err != nil {
			r.log.Debug("channel ledger write failed", logx.String("channel", d.ID), logx.Err(err))
		}
	}
	return drifted
}
