package retry

import "time"

// ForDatabase returns a manager tuned for relational-store operations:
// 5 retries, 2s base delay, 30s cap, 1.5x backoff. Caller options are applied
// after the preset, so each explicitly set field wins over the default, and
// caller conditions are appended rather than replacing the preset's.
func ForDatabase(opts ...Option) (*Manager, error) {
	base := []Option{
		WithMaxRetries(5),
		WithBaseDelay(2 * time.Second),
		WithMaxDelay(30 * time.Second),
		WithBackoffMultiplier(1.5),
		WithConditions(TransientNetwork, DatabaseTransient),
	}
	return New(append(base, opts...)...)
}

// ForCache returns a manager tuned for cache-store operations:
// 3 retries, 1s base delay, 10s cap, 2x backoff.
func ForCache(opts ...Option) (*Manager, error) {
	base := []Option{
		WithMaxRetries(3),
		WithBaseDelay(1 * time.Second),
		WithMaxDelay(10 * time.Second),
		WithBackoffMultiplier(2.0),
		WithConditions(TransientNetwork, CacheTransient),
	}
	return New(append(base, opts...)...)
}
