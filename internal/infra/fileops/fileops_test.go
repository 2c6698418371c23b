package fileops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/resilience/internal/retry"
)

func fastUtils(t *testing.T, opts ...retry.Option) *Utils {
	t.Helper()
	base := []retry.Option{
		retry.WithBaseDelay(1 * time.Millisecond),
		retry.WithMaxDelay(5 * time.Millisecond),
		retry.WithJitter(false),
	}
	u, err := NewUtils(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewUtils failed: %v", err)
	}
	return u
}

func TestWriteThenRead(t *testing.T) {
	u := fastUtils(t)
	path := filepath.Join(t.TempDir(), "export.csv")

	if err := u.WriteFile(context.Background(), path, []byte("id,price\n1,1999\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := u.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "id,price\n1,1999\n" {
		t.Errorf("read back %q", data)
	}
}

func TestReadRetriesUntilFileAppears(t *testing.T) {
	u := fastUtils(t, retry.WithMaxRetries(5), retry.WithBaseDelay(10*time.Millisecond))
	path := filepath.Join(t.TempDir(), "report.pdf")

	// Make the file visible while the reader is backing off.
	go func() {
		time.Sleep(15 * time.Millisecond)
		os.WriteFile(path, []byte("done"), 0o644)
	}()

	data, err := u.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "done" {
		t.Errorf("read %q, want done", data)
	}
}

func TestReadExhaustsBudgetForMissingFile(t *testing.T) {
	u := fastUtils(t)

	_, err := u.ReadFile(context.Background(), filepath.Join(t.TempDir(), "never.txt"))
	if err == nil {
		t.Fatal("expected error")
	}
	var rerr *retry.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *retry.Error, got %T", err)
	}
	// File defaults: 2 retries, 3 total attempts.
	if rerr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", rerr.Attempts)
	}
}

func TestRemoveMissingFileIsSuccess(t *testing.T) {
	u := fastUtils(t)

	if err := u.Remove(context.Background(), filepath.Join(t.TempDir(), "gone.txt")); err != nil {
		t.Errorf("Remove of missing file returned %v, want nil", err)
	}
}

func TestRemoveDeletesFile(t *testing.T) {
	u := fastUtils(t)
	path := filepath.Join(t.TempDir(), "tmp.bin")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := u.Remove(context.Background(), path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists after Remove")
	}
}
