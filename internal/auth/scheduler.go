package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultRefreshBuffer is how long before expiry a refresh is scheduled.
const DefaultRefreshBuffer = 5 * time.Second

const refreshTimeout = 15 * time.Second

// ErrTokenExpired is reported when a refresh succeeded but returned a token that
// has already expired.
var ErrTokenExpired = errors.New("auth: refreshed token already expired")

// SchedulerState is the scheduler's lifecycle state.
type SchedulerState string

const (
	StateIdle       SchedulerState = "idle"
	StateScheduled  SchedulerState = "scheduled"
	StateRefreshing SchedulerState = "refreshing"
	StateStopped    SchedulerState = "stopped"
)

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the scheduler.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SchedulerDeps wires a Scheduler.
type SchedulerDeps struct {
	Tokens  *Tokens
	Refresh func(ctx context.Context) error
	Clock   Clock
	Buffer  time.Duration
	// OnFailure is told when a scheduled refresh fails or yields an expired token.
	OnFailure func(err error)
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Scheduler refreshes a session's access token shortly before it expires. It owns
// at most one timer; Stop cancels it and makes any callback already running a no-op.
type Scheduler struct {
	tokens    *Tokens
	refresh   func(ctx context.Context) error
	clock     Clock
	buffer    time.Duration
	onFailure func(err error)
	logger    func(ctx context.Context, event string, fields map[string]any)

	mu         sync.Mutex
	state      SchedulerState
	timer      Timer
	generation uint64
	nextAt     time.Time
}

// NewScheduler validates deps.
func NewScheduler(deps SchedulerDeps) (*Scheduler, error) {
	if deps.Tokens == nil {
		return nil, errors.New("scheduler: tokens are required")
	}
	if deps.Refresh == nil {
		return nil, errors.New("scheduler: refresh func is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	buffer := deps.Buffer
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Scheduler{
		tokens:    deps.Tokens,
		refresh:   deps.Refresh,
		clock:     clock,
		buffer:    buffer,
		onFailure: deps.OnFailure,
		logger:    logger,
		state:     StateIdle,
	}, nil
}

// State returns the current state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextRefresh returns when the armed timer fires, or the zero time.
func (s *Scheduler) NextRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateScheduled {
		return time.Time{}
	}
	return s.nextAt
}

// Start reads the current access token and arms the timer at exp - buffer. A token
// that has already expired is refreshed before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.generation++
	gen := s.generation
	s.state = StateIdle
	s.mu.Unlock()

	return s.arm(ctx, gen, false)
}

// Stop cancels the timer. Callbacks from earlier generations do nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.generation++
	s.state = StateStopped
}

func (s *Scheduler) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextAt = time.Time{}
}

// arm schedules the next refresh for generation gen. afterRefresh marks a call
// made right after a successful refresh, where an expired token must not loop.
func (s *Scheduler) arm(ctx context.Context, gen uint64, afterRefresh bool) error {
	exp, err := ExpiryFromToken(s.tokens.AccessToken())
	if err != nil {
		s.settle(gen, StateIdle)
		s.logger(ctx, "token_schedule_skipped", map[string]any{"error": err.Error()})
		return err
	}

	now := s.clock.Now()
	until := exp.Sub(now)
	if until <= 0 {
		if afterRefresh {
			s.settle(gen, StateIdle)
			s.logger(ctx, "token_refresh_failed", map[string]any{"error": ErrTokenExpired.Error()})
			return ErrTokenExpired
		}
		s.logger(ctx, "token_expired_refreshing", nil)
		return s.fire(ctx, gen)
	}

	delay := max(0, until-s.buffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil
	}
	s.cancelTimerLocked()
	s.state = StateScheduled
	s.nextAt = now.Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := s.fire(ctx, gen); err != nil && s.onFailure != nil {
			s.onFailure(err)
		}
	})
	s.logger(ctx, "token_refresh_scheduled", map[string]any{
		"expires_in_ms": until.Milliseconds(),
		"refresh_in_ms": delay.Milliseconds(),
	})
	return nil
}

// fire runs one refresh for generation gen and re-arms on success.
func (s *Scheduler) fire(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	s.timer = nil
	s.nextAt = time.Time{}
	s.state = StateRefreshing
	s.mu.Unlock()

	if err := s.refresh(ctx); err != nil {
		s.settle(gen, StateIdle)
		return err
	}

	s.mu.Lock()
	current := gen == s.generation
	s.mu.Unlock()
	if !current {
		return nil
	}
	return s.arm(ctx, gen, true)
}

func (s *Scheduler) settle(gen uint64, state SchedulerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.state = state
	}
}
