package escalation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"wakealert/internal/deferred"
	"wakealert/internal/device"
	"wakealert/internal/eventbus"
	logx "wakealert/pkg/logx"
)

// ErrNavigationUnavailable is returned by a Navigator when a target does not
// exist on this build. The sequencer treats any navigation error the same.
var ErrNavigationUnavailable = errors.New("escalation: settings target unavailable")

// Checker reports whether a permission is currently granted.
type Checker interface {
	Granted(ctx context.Context, p Permission) (bool, error)
}

// Navigator opens a settings surface.
type Navigator interface {
	Open(ctx context.Context, t Target) error
}

// Phase of one sequencer run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseEvaluating
	PhasePrompting
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseEvaluating:
		return "evaluating"
	case PhasePrompting:
		return "prompting"
	case PhaseSettled:
		return "settled"
	default:
		return "idle"
	}
}

// Scheduled is a prompt queued by a run.
type Scheduled struct {
	Key   string        `json:"key"`
	Delay time.Duration `json:"delay"`
}

// Result summarizes one Run.
type Result struct {
	NotApplicable  []string    `json:"not_applicable,omitempty"`
	AlreadySettled []string    `json:"already_settled,omitempty"`
	Granted        []string    `json:"granted,omitempty"`
	Scheduled      []Scheduled `json:"scheduled,omitempty"`
}

// Prompt is published on the bus when a navigation is attempted.
type Prompt struct {
	Key    string `json:"key"`
	Target string `json:"target,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// Timing controls prompt staggering. Prompt n (0-based) fires after
// FirstDelay + n*Stagger.
type Timing struct {
	FirstDelay time.Duration
	Stagger    time.Duration
}

var DefaultTiming = Timing{FirstDelay: time.Second, Stagger: 1200 * time.Millisecond}

// Sequencer is the PermissionEscalationSequencer.
type Sequencer struct {
	steps   []Step
	state   StatePort
	checker Checker
	nav     Navigator
	timers  *deferred.Timers
	bus     eventbus.Bus
	log     logx.Logger

	mu     sync.Mutex
	timing Timing
	phase  Phase
	// cache of the persisted state; survives store read failures within a process.
	cached State
}

type Deps struct {
	State   StatePort
	Checker Checker
	Nav     Navigator
	Timers  *deferred.Timers
	Bus     eventbus.Bus
	Log     logx.Logger
	Steps   []Step
	Timing  Timing
}

func NewSequencer(d Deps) (*Sequencer, error) {
	if d.State == nil || d.Checker == nil || d.Nav == nil || d.Timers == nil {
		return nil, errors.New("escalation: state, checker, navigator and timers are required")
	}
	steps := d.Steps
	if steps == nil {
		steps = DefaultSteps()
	}
	steps = append([]Step(nil), steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	seen := map[string]bool{}
	for _, s := range steps {
		if s.Key == "" || seen[s.Key] {
			return nil, fmt.Errorf("escalation: step key %q empty or duplicated", s.Key)
		}
		seen[s.Key] = true
	}

	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	timing := d.Timing
	if timing == (Timing{}) {
		timing = DefaultTiming
	}
	return &Sequencer{
		steps:   steps,
		state:   d.State,
		checker: d.Checker,
		nav:     d.Nav,
		timers:  d.Timers,
		bus:     d.Bus,
		log:     log,
		timing:  timing,
		cached:  NewState(),
	}, nil
}

// SetTiming replaces the stagger timing for future runs.
func (s *Sequencer) SetTiming(t Timing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.FirstDelay < 0 {
		t.FirstDelay = 0
	}
	if t.Stagger <= 0 {
		t.Stagger = DefaultTiming.Stagger
	}
	s.timing = t
}

func (s *Sequencer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Steps returns the step table in evaluation order.
func (s *Sequencer) Steps() []Step { return append([]Step(nil), s.steps...) }

// Run evaluates every step against profile. It is cheap to call on every
// foreground event: resolved steps short-circuit before any host call.
func (s *Sequencer) Run(ctx context.Context, profile device.Profile) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseEvaluating
	state, err := s.state.Load(ctx)
	if err != nil {
		s.log.Warn("escalation state unreadable; using in-process state", logx.Err(err))
		state = s.cached
	} else {
		for _, k := range s.cached.Keys() {
			state = state.With(k)
		}
	}

	var res Result
	for _, step := range s.steps {
		if step.AppliesTo != nil && !step.AppliesTo(profile) {
			res.NotApplicable = append(res.NotApplicable, step.Key)
			continue
		}
		if state.Resolved(step.Key) {
			res.AlreadySettled = append(res.AlreadySettled, step.Key)
			continue
		}

		granted, err := s.checker.Granted(ctx, step.Permission)
		if err != nil {
			s.log.Debug("permission check failed; treating as not granted",
				logx.String("step", step.Key), logx.Err(err))
			granted = false
		}

		// Resolve before prompting so the prompt can never repeat.
		state = state.With(step.Key)
		s.cached = s.cached.With(step.Key)
		if err := s.state.Save(ctx, state); err != nil {
			s.log.Warn("escalation flag not persisted", logx.String("step", step.Key), logx.Err(err))
		}

		if granted {
			res.Granted = append(res.Granted, step.Key)
			s.log.Debug("permission already granted", logx.String("step", step.Key))
			continue
		}

		delay := s.timing.FirstDelay + time.Duration(len(res.Scheduled))*s.timing.Stagger
		targets := []Target{TargetAppDetails}
		if step.Targets != nil {
			targets = step.Targets(profile)
		}
		key := step.Key
		if err := s.timers.Schedule("escalation."+key, delay, func() { s.navigate(key, targets) }); err != nil {
			s.log.Warn("escalation prompt not scheduled", logx.String("step", key), logx.Err(err))
			eventbus.Publish(s.bus, eventbus.TypeEscalationPrompt, Prompt{Key: key, Failed: true})
			continue
		}
		s.phase = PhasePrompting
		res.Scheduled = append(res.Scheduled, Scheduled{Key: key, Delay: delay})
		s.log.Info("permission prompt scheduled", logx.String("step", key), logx.Duration("delay", delay))
	}

	s.phase = PhaseSettled
	eventbus.Publish(s.bus, eventbus.TypeEscalationSettled, res)
	return res, nil
}

// navigate walks the fallback chain and stops at the first target that opens.
func (s *Sequencer) navigate(key string, targets []Target) {
	ctx := context.Background()
	for _, t := range targets {
		err := s.nav.Open(ctx, t)
		if err == nil {
			s.log.Info("permission prompt opened", logx.String("step", key), logx.String("target", t.Name))
			eventbus.Publish(s.bus, eventbus.TypeEscalationPrompt, Prompt{Key: key, Target: t.Name})
			return
		}
		s.log.Debug("settings target failed; trying next",
			logx.String("step", key), logx.String("target", t.Name), logx.Err(err))
	}
	s.log.Warn("no settings target available", logx.String("step", key))
	eventbus.Publish(s.bus, eventbus.TypeEscalationPrompt, Prompt{Key: key, Failed: true})
}
