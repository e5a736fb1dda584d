// Package importerror defines the error taxonomy of a catalog import run.
//
// Errors fall in three families:
//   - ParseError / HeaderError: problems with the CSV input. A HeaderError is
//     fatal, a ParseError only rejects its row.
//   - AccessError: the account cannot be acted on at all. Always fatal.
//   - APIError: a single remote operation failed. Contained to the smallest
//     enclosing subtree (product, subcategory, category).
package importerror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrCancelled is returned when an import run is aborted by its caller.
var ErrCancelled = errors.New("import cancelled")

// ParseError rejects a single CSV row.
type ParseError struct {
	Row    int // 1-based line number in the input, header is line 1
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// HeaderError is returned when required columns are absent from the CSV header.
type HeaderError struct {
	Missing []string
	Found   []string
}

func (e *HeaderError) Error() string {
	if len(e.Found) == 0 {
		return fmt.Sprintf("missing required columns %s: no header row found",
			strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("missing required columns %s (found: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

// AccessKind classifies account validation failures.
type AccessKind int

const (
	// AccessUnlinked means the account is not linked to the developer account.
	AccessUnlinked AccessKind = iota + 1
	// AccessAuthFailed means the configured credentials were refused.
	AccessAuthFailed
	// AccessNotFound means the account does not exist.
	AccessNotFound
)

func (k AccessKind) String() string {
	switch k {
	case AccessUnlinked:
		return "unlinked"
	case AccessAuthFailed:
		return "auth_failed"
	case AccessNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// AccessError is returned by account validation.
type AccessError struct {
	Kind               AccessKind
	AccountID          string
	DeveloperAccountID string
	Err                error
}

func (e *AccessError) Error() string {
	switch e.Kind {
	case AccessUnlinked:
		if e.DeveloperAccountID != "" {
			return fmt.Sprintf("account %s is not linked to developer account %s",
				e.AccountID, e.DeveloperAccountID)
		}
		return fmt.Sprintf("account %s is not linked to the developer account", e.AccountID)
	case AccessNotFound:
		return fmt.Sprintf("account %s not found", e.AccountID)
	case AccessAuthFailed:
		if e.Err != nil {
			return fmt.Sprintf("authentication failed for account %s: %v", e.AccountID, e.Err)
		}
		return fmt.Sprintf("authentication failed for account %s", e.AccountID)
	}
	return fmt.Sprintf("cannot access account %s: %v", e.AccountID, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// APIKind classifies failures of a single remote operation.
type APIKind int

const (
	// APIRejected is any non-2xx answer other than an authentication failure.
	// StatusCode 0 means the request never got an answer (transport failure).
	APIRejected APIKind = iota + 1
	// APITimeout means the call did not finish within its deadline.
	APITimeout
	// APIAuthFailed means the call was refused even after a token refresh.
	APIAuthFailed
	// APINotFound means a referenced entity (e.g. a product for a PLU) does not exist.
	APINotFound
)

func (k APIKind) String() string {
	switch k {
	case APIRejected:
		return "rejected"
	case APITimeout:
		return "timeout"
	case APIAuthFailed:
		return "auth_failed"
	case APINotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// APIError describes a failed remote operation.
type APIError struct {
	Kind       APIKind
	Operation  string
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case APIRejected:
		if e.StatusCode == 0 {
			return fmt.Sprintf("%s: request failed: %v", e.Operation, e.Err)
		}
		if e.Err != nil && e.Body == "" {
			return fmt.Sprintf("%s: %v (status %d)", e.Operation, e.Err, e.StatusCode)
		}
		return fmt.Sprintf("%s: rejected with status %d: %s", e.Operation, e.StatusCode, truncate(e.Body, 200))
	case APITimeout:
		return fmt.Sprintf("%s: timed out", e.Operation)
	case APIAuthFailed:
		return fmt.Sprintf("%s: authentication failed", e.Operation)
	case APINotFound:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Operation, e.Err)
		}
		return fmt.Sprintf("%s: not found", e.Operation)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var headerErr *HeaderError
	var accessErr *AccessError
	return errors.As(err, &headerErr) || errors.As(err, &accessErr)
}

// IsRetryable reports whether a retry policy may repeat the failed operation:
// timeouts, transport failures, throttling (429) and server-side failures (5xx).
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case APITimeout:
		return true
	case APIRejected:
		return apiErr.StatusCode == 0 ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= 500
	}
	return false
}

// IsTimeout reports whether err is a deadline expiry, either typed or raw.
func IsTimeout(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == APITimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RetryAfter returns the server-requested delay carried by err, if any.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
