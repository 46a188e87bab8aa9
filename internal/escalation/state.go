package escalation

import (
	"context"
	"errors"
	"sort"
	"strings"

	"wakealert/internal/storage"
)

// State maps step keys to their "prompted" flag. It only grows.
type State struct {
	prompted map[string]bool
}

func NewState(keys ...string) State {
	s := State{prompted: make(map[string]bool, len(keys))}
	for _, k := range keys {
		s.prompted[k] = true
	}
	return s
}

func (s State) Resolved(key string) bool { return s.prompted[key] }

// With returns a copy of s with key resolved.
func (s State) With(key string) State {
	out := State{prompted: make(map[string]bool, len(s.prompted)+1)}
	for k := range s.prompted {
		out.prompted[k] = true
	}
	out.prompted[key] = true
	return out
}

// Keys returns the resolved keys, sorted.
func (s State) Keys() []string {
	out := make([]string, 0, len(s.prompted))
	for k := range s.prompted {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StatePort loads and saves EscalationState.
type StatePort interface {
	Load(ctx context.Context) (State, error)
	// Save persists every key resolved in s. Keys are never unset, so a
	// repeated save is harmless.
	Save(ctx context.Context, s State) error
}

const keyPrefix = "escalation."

// StoreState keeps EscalationState in a storage.Store under "escalation.".
type StoreState struct {
	st storage.Store
}

func NewStoreState(st storage.Store) *StoreState { return &StoreState{st: st} }

func (p *StoreState) Load(ctx context.Context) (State, error) {
	if p == nil || p.st == nil {
		return NewState(), storage.ErrDisabled
	}
	recs, err := p.st.Flags(ctx, keyPrefix)
	if err != nil {
		return NewState(), err
	}
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, strings.TrimPrefix(r.Key, keyPrefix))
	}
	return NewState(keys...), nil
}

func (p *StoreState) Save(ctx context.Context, s State) error {
	if p == nil || p.st == nil {
		return storage.ErrDisabled
	}
	var errs []error
	for _, k := range s.Keys() {
		if err := p.st.SetFlag(ctx, keyPrefix+k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
