package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/resilience/internal/retry"
)

func fastClient(t *testing.T, opts ...retry.Option) *Client {
	t.Helper()
	base := []retry.Option{
		retry.WithBaseDelay(1 * time.Millisecond),
		retry.WithMaxDelay(5 * time.Millisecond),
		retry.WithJitter(false),
	}
	c, err := NewClient(WithRetryOptions(append(base, opts...)...))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestGetRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			http.Error(w, "temporarily down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("listing data"))
	}))
	defer srv.Close()

	resp, err := fastClient(t).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "listing data" {
		t.Errorf("body = %q", resp.Body)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := fastClient(t).Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}

	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StatusError in chain, got %v", err)
	}
	if serr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", serr.StatusCode)
	}
}

func TestPostReplaysBodyAcrossAttempts(t *testing.T) {
	var hits atomic.Int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		if hits.Add(1) == 1 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	payload := []byte(`{"amount": 1999}`)
	resp, err := fastClient(t).Post(context.Background(), srv.URL, "application/json", payload)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hit %d times, want 2", got)
	}
	if lastBody.Load() != `{"amount": 1999}` {
		t.Errorf("retried request body = %q, want full payload", lastBody.Load())
	}
}

func TestGetSurfacesFinalFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fastClient(t, retry.WithMaxRetries(2)).Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
	var rerr *retry.Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *retry.Error, got %T", err)
	}
	if rerr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", rerr.Attempts)
	}
}

func TestCustomRetryCodes(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	// A client that only retries 503 treats 500 as permanent.
	c, err := NewClient(
		WithRetryCodes(503),
		WithRetryOptions(
			retry.WithBaseDelay(1*time.Millisecond),
			retry.WithJitter(false),
		),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = c.Get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}
}
