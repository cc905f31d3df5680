// Package session watches the bearer token for expiry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"meetfeed/internal/clock"
	appLog "meetfeed/internal/log"
)

// DefaultCheckInterval matches the client's one-minute expiry poll.
const DefaultCheckInterval = 60 * time.Second

// Accessor returns the current token, or "" when there is none.
type Accessor func() string

// Monitor re-evaluates the token on a schedule and calls onExpired each
// time a check finds it expired. Repeated firings are not deduplicated.
type Monitor struct {
	token     Accessor
	onExpired func()
	onValid   func()
	clock     clock.Clock
	schedule  cron.Schedule

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Monitor)

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithOnValid registers a callback run by every check that finds an
// unexpired token, e.g. to resume work after a new token was stored.
func WithOnValid(fn func()) Option {
	return func(m *Monitor) { m.onValid = fn }
}

func WithSchedule(s cron.Schedule) Option {
	return func(m *Monitor) { m.schedule = s }
}

func NewMonitor(token Accessor, onExpired func(), opts ...Option) *Monitor {
	m := &Monitor{
		token:     token,
		onExpired: onExpired,
		clock:     clock.Real{},
		schedule:  cron.Every(DefaultCheckInterval),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check runs a single evaluation. It returns ErrSessionExpired after
// invoking onExpired, a *TokenDecodeError for unreadable tokens, and nil
// when there is no token or it is still valid.
func (m *Monitor) Check() error {
	tok := m.token()
	if tok == "" {
		return nil
	}

	exp, err := Expiry(tok)
	if err != nil {
		appLog.Error("session token decode failed", err)
		return err
	}

	now := m.clock.Now()
	if !Expired(exp, now) {
		appLog.Debug("session token valid", "exp", exp.Format(time.RFC3339), "remaining", exp.Sub(now).Round(time.Second))
		if m.onValid != nil {
			m.onValid()
		}
		return nil
	}

	appLog.Info("session expired", "exp", exp.Format(time.RFC3339))
	if m.onExpired != nil {
		m.onExpired()
	}
	return ErrSessionExpired
}

// Start checks immediately, then keeps checking on the schedule in the
// background. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	_ = m.Check()
	go func() {
		defer close(done)
		clock.Loop(ctx, m.clock, m.schedule, func(time.Time) {
			_ = m.Check()
		})
	}()
}

// Stop cancels the schedule and waits for any in-progress check, so
// onExpired is never called after Stop returns. onExpired must not call
// Stop itself.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
