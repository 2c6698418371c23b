package retry

import (
	"context"
	"log/slog"
	"time"
)

// AttemptInfo describes a retry about to happen.
type AttemptInfo struct {
	Attempt   int // 1-based retry number
	Operation string
	Err       error // the error that caused this retry
	Delay     time.Duration
	Fields    Fields
}

// FailureInfo describes an operation that exhausted its attempt budget.
type FailureInfo struct {
	Attempts  int // total attempts made
	Operation string
	Err       error
	Fields    Fields
}

// Listener observes retry lifecycle events. Listeners are observability
// hooks, not control flow: whatever they do, retry behavior is unchanged.
// Multiple listeners may subscribe to one policy.
type Listener interface {
	OnRetry(ctx context.Context, info AttemptInfo)
	OnFinalFailure(ctx context.Context, info FailureInfo)
}

// LogListener writes structured retry events via slog. It is the default
// listener when a policy registers no others.
type LogListener struct {
	log *slog.Logger
}

// NewLogListener creates a LogListener. A nil logger falls back to slog.Default.
func NewLogListener(log *slog.Logger) *LogListener {
	if log == nil {
		log = slog.Default()
	}
	return &LogListener{log: log}
}

func (l *LogListener) OnRetry(ctx context.Context, info AttemptInfo) {
	l.log.WarnContext(ctx, "retrying operation",
		append([]any{
			"operation", info.Operation,
			"attempt", info.Attempt,
			"delay", info.Delay,
			"error", info.Err,
		}, fieldArgs(info.Fields)...)...)
}

func (l *LogListener) OnFinalFailure(ctx context.Context, info FailureInfo) {
	l.log.ErrorContext(ctx, "operation failed after all attempts",
		append([]any{
			"operation", info.Operation,
			"attempts", info.Attempts,
			"error", info.Err,
		}, fieldArgs(info.Fields)...)...)
}

func fieldArgs(fields Fields) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
