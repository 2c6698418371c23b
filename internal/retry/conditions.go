package retry

import (
	"errors"
	"io"
	"io/fs"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Condition decides, given an error and the 0-based attempt index, whether
// another attempt should be made.
type Condition func(err error, attempt int) bool

// StatusCoder is implemented by errors that carry an HTTP status code,
// letting conditions classify them without string matching.
type StatusCoder interface {
	HTTPStatus() int
}

var transientPatterns = []string{
	"connection refused",
	"no such host",
	"timeout",
	"timed out",
	"connection reset",
	"broken pipe",
	"socket hang up",
	"temporary failure",
	"service unavailable",
	"internal server error",
}

var databasePatterns = []string{
	"connection terminated",
	"connection lost",
	"connection reset",
	"connection refused",
	"pool exhausted",
	"timeout acquiring connection",
	"database is unavailable",
	"lock timeout",
	"deadlock",
}

var cachePatterns = []string{
	"connection refused",
	"connection lost",
	"connection reset",
	"redis is unavailable",
	"clusterdown",
	"cluster is down",
	"loading",
	"masterdown",
	"master is down",
	"replica not ready",
}

var filePatterns = []string{
	"resource busy",
	"device or resource busy",
	"too many open files",
	"file table overflow",
	"no such file",
}

// TransientNetwork is the default retry condition: typed network failures
// first, substring matching as a fallback for opaque errors. Errors it does
// not recognize are treated as permanent so that logic errors (bad input,
// auth failures, not-found) are never silently retried.
func TransientNetwork(err error, _ int) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return matchAny(err, transientPatterns)
}

// DatabaseTransient classifies relational-store errors. Postgres errors carry
// a SQLSTATE, which is authoritative when present; class 08 is a connection
// exception, 40001/40P01 are serialization/deadlock, 53300 is pool pressure,
// 57P0x are server shutdown states.
func DatabaseTransient(err error, _ int) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "53300":
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return true
		}
		return false
	}
	return matchAny(err, databasePatterns)
}

// CacheTransient classifies cache-store errors: Redis server states that
// resolve on their own (LOADING, CLUSTERDOWN, MASTERDOWN) plus connection
// failures.
func CacheTransient(err error, _ int) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return matchAny(err, cachePatterns)
}

// HTTPTransient builds a condition retrying on the given HTTP status codes
// (default 408, 429, 500, 502, 503, 504) or on transport-level failures.
func HTTPTransient(retryCodes ...int) Condition {
	if len(retryCodes) == 0 {
		retryCodes = []int{408, 429, 500, 502, 503, 504}
	}
	set := make(map[int]bool, len(retryCodes))
	for _, c := range retryCodes {
		set[c] = true
	}
	return func(err error, attempt int) bool {
		var sc StatusCoder
		if errors.As(err, &sc) {
			return set[sc.HTTPStatus()]
		}
		return TransientNetwork(err, attempt)
	}
}

// FileTransient classifies filesystem errors that clear on their own: busy
// files, descriptor exhaustion, and reads of files not yet visible.
func FileTransient(err error, _ int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.EAGAIN) {
		return true
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	return matchAny(err, filePatterns)
}

// GRPCTransient retries gRPC statuses that indicate transient server or
// network state.
func GRPCTransient(err error, _ int) bool {
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.DeadlineExceeded:
		return true
	}
	return false
}

func matchAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
