// Package retry provides a configurable retry/backoff execution engine.
//
// A Manager owns one immutable Policy and executes caller-supplied operations
// under it: deciding retry eligibility per attempt, sleeping with exponential
// backoff and optional jitter between attempts, and notifying listeners before
// each retry and once on final failure.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/resilience/internal/metrics"
)

// Operation is the caller-supplied unit of work. The engine only observes
// success or failure; it knows nothing about what the operation does.
type Operation func(ctx context.Context) (any, error)

// Fields is an arbitrary key/value bag threaded through to listeners for
// structured logging. It carries no behavior.
type Fields map[string]any

// Policy holds retry configuration. It is immutable after construction and
// holds no per-call state, so one Policy is safe to share across concurrent
// operations.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Total attempts = MaxRetries + 1.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps any computed delay.
	MaxDelay time.Duration
	// BackoffMultiplier is the exponential growth factor per attempt.
	BackoffMultiplier float64
	// Jitter randomizes each delay by ±25% to avoid synchronized retry storms.
	Jitter bool

	conditions []Condition
	listeners  []Listener
}

// Option configures a Policy at construction time.
type Option func(*Policy)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(p *Policy) { p.MaxRetries = n }
}

// WithBaseDelay sets the delay before the first retry.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) { p.BaseDelay = d }
}

// WithMaxDelay sets the upper bound on any computed delay.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.MaxDelay = d }
}

// WithBackoffMultiplier sets the exponential growth factor.
func WithBackoffMultiplier(m float64) Option {
	return func(p *Policy) { p.BackoffMultiplier = m }
}

// WithJitter enables or disables ±25% delay randomization.
func WithJitter(enabled bool) Option {
	return func(p *Policy) { p.Jitter = enabled }
}

// WithConditions appends retry conditions. An error is retryable when any
// condition returns true.
func WithConditions(conds ...Condition) Option {
	return func(p *Policy) { p.conditions = append(p.conditions, conds...) }
}

// WithListeners appends lifecycle listeners notified on retry and final failure.
func WithListeners(ls ...Listener) Option {
	return func(p *Policy) { p.listeners = append(p.listeners, ls...) }
}

// ConfigError reports an invalid policy field at construction.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("retry: invalid %s: %s", e.Field, e.Reason)
}

// Error is the terminal error surfaced once a policy's attempt budget is
// exhausted. The last underlying error is retained as the cause.
type Error struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Manager executes operations under one Policy. Safe for concurrent use.
type Manager struct {
	policy Policy
}

// New builds a Manager, validating every policy field up front. Invalid
// configuration fails here, never at first use.
func New(opts ...Option) (*Manager, error) {
	p := Policy{
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	for _, opt := range opts {
		opt(&p)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	if len(p.conditions) == 0 {
		p.conditions = []Condition{TransientNetwork}
	}
	if len(p.listeners) == 0 {
		p.listeners = []Listener{NewLogListener(slog.Default())}
	}

	return &Manager{policy: p}, nil
}

func (p *Policy) validate() error {
	if p.MaxRetries < 0 {
		return &ConfigError{Field: "MaxRetries", Reason: "must be >= 0"}
	}
	if p.BaseDelay <= 0 {
		return &ConfigError{Field: "BaseDelay", Reason: "must be > 0"}
	}
	if p.MaxDelay <= 0 {
		return &ConfigError{Field: "MaxDelay", Reason: "must be > 0"}
	}
	if p.BackoffMultiplier <= 0 {
		return &ConfigError{Field: "BackoffMultiplier", Reason: "must be > 0"}
	}
	return nil
}

// Policy returns a copy of the manager's policy.
func (m *Manager) Policy() Policy {
	p := m.policy
	p.conditions = append([]Condition(nil), m.policy.conditions...)
	p.listeners = append([]Listener(nil), m.policy.listeners...)
	return p
}

// Execute runs op under the manager's policy and returns its result, or a
// *Error once all attempts are exhausted.
func (m *Manager) Execute(ctx context.Context, name string, op Operation) (any, error) {
	return m.ExecuteWithFields(ctx, name, nil, op)
}

// ExecuteWithFields is Execute with a caller context bag threaded to listeners.
func (m *Manager) ExecuteWithFields(
	ctx context.Context,
	name string,
	fields Fields,
	op Operation,
) (any, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= m.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := m.policy.delayFor(attempt)
			metrics.RetryBackoffSeconds.Observe(delay.Seconds())

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}

			info := AttemptInfo{
				Attempt:   attempt,
				Operation: name,
				Err:       lastErr,
				Delay:     delay,
				Fields:    fields,
			}
			for _, l := range m.policy.listeners {
				l.OnRetry(ctx, info)
			}
		}

		attempts++
		metrics.RetryAttemptsTotal.WithLabelValues(name).Inc()

		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				slog.Info("operation succeeded after retry",
					"operation", name, "attempt", attempt+1)
			}
			return result, nil
		}

		lastErr = err
		if attempt >= m.policy.MaxRetries || !m.shouldRetry(err, attempt) {
			break
		}
	}

	failure := FailureInfo{
		Attempts:  attempts,
		Operation: name,
		Err:       lastErr,
		Fields:    fields,
	}
	for _, l := range m.policy.listeners {
		l.OnFinalFailure(ctx, failure)
	}
	metrics.RetryFinalFailuresTotal.WithLabelValues(name).Inc()

	return nil, &Error{Operation: name, Attempts: attempts, Err: lastErr}
}

// shouldRetry reports whether any policy condition classifies err as retryable.
func (m *Manager) shouldRetry(err error, attempt int) bool {
	for _, cond := range m.policy.conditions {
		if cond(err, attempt) {
			return true
		}
	}
	return false
}

// delayFor computes the backoff delay before the attempt-th retry (1-based).
func (p *Policy) delayFor(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d += d * 0.25 * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs a typed operation under m, avoiding the any round-trip at call sites.
func Do[T any](
	ctx context.Context,
	m *Manager,
	name string,
	op func(ctx context.Context) (T, error),
) (T, error) {
	result, err := m.Execute(ctx, name, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
