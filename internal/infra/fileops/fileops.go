// Package fileops provides retry-backed filesystem operations for transient
// failures: busy files, descriptor exhaustion, files not yet visible.
package fileops

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/vietddude/resilience/internal/retry"
)

// Utils wraps filesystem calls in a retry policy with small defaults
// (2 retries, 500ms base delay), since file transients clear quickly or not
// at all.
type Utils struct {
	retry *retry.Manager
}

// NewUtils builds the facade. Retry options are applied over the filesystem
// defaults.
func NewUtils(opts ...retry.Option) (*Utils, error) {
	base := []retry.Option{
		retry.WithMaxRetries(2),
		retry.WithBaseDelay(500 * time.Millisecond),
		retry.WithMaxDelay(5 * time.Second),
		retry.WithConditions(retry.FileTransient),
	}
	r, err := retry.New(append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Utils{retry: r}, nil
}

// ReadFile reads the whole file, retrying when it is busy or not yet
// visible.
func (u *Utils) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return retry.Do(ctx, u.retry, "read "+path, func(ctx context.Context) ([]byte, error) {
		return os.ReadFile(path)
	})
}

// WriteFile writes data to the file, retrying transient failures.
func (u *Utils) WriteFile(ctx context.Context, path string, data []byte, perm fs.FileMode) error {
	_, err := u.retry.Execute(ctx, "write "+path, func(ctx context.Context) (any, error) {
		return nil, os.WriteFile(path, data, perm)
	})
	return err
}

// Remove deletes the file. A file that is already gone counts as success.
func (u *Utils) Remove(ctx context.Context, path string) error {
	_, err := u.retry.Execute(ctx, "remove "+path, func(ctx context.Context) (any, error) {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	})
	return err
}
