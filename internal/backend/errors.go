// ABOUTME: Structured error type for backend failures with a classified Kind
// ABOUTME: Detail-string matching happens in exactly one place, never in callers

package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a backend failure so callers can branch on meaning instead
// of matching substrings of the detail text.
type Kind int

const (
	// KindUnknown covers details this package cannot classify, and any
	// transport-level failure.
	KindUnknown Kind = iota

	// KindAuth means credentials or token were rejected (401).
	KindAuth

	// KindForbidden means the account lacks the admin role (403).
	KindForbidden

	// KindSchemaMissing means the account has no schema uploaded yet.
	KindSchemaMissing

	// KindSchemaMismatch means the prompt referenced nothing in the schema.
	KindSchemaMismatch

	// KindNotSelect means the backend refused a non-SELECT statement.
	KindNotSelect

	// KindTooManyRows means query execution reported a row-limit overflow.
	// The chat flow offers exactly one retry with a smaller limit on this.
	KindTooManyRows

	// KindNotFound means the addressed session or user does not exist (404).
	KindNotFound

	// KindRateLimited means the backend throttled the caller (429).
	KindRateLimited
)

// String returns a short name for logging.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindSchemaMissing:
		return "schema_missing"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindNotSelect:
		return "not_select"
	case KindTooManyRows:
		return "too_many_rows"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is a non-2xx backend response: HTTP status, classified kind, and the
// backend's own detail text for display.
type Error struct {
	Status int
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// KindOf extracts the Kind from any error. Transport failures and non-backend
// errors are KindUnknown.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// classifyDetail maps a response to a Kind. The status carries most of the
// signal; the 400 detail strings come from the backend's documented messages.
func classifyDetail(status int, detail string) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindAuth
	case http.StatusForbidden:
		// The bearer scheme reports a missing header as 403.
		if strings.Contains(detail, "Not authenticated") {
			return KindAuth
		}
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	}

	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "upload a database schema"):
		return KindSchemaMissing
	case strings.Contains(lower, "does not match any tables"),
		strings.Contains(lower, "did not reference your database schema"):
		return KindSchemaMismatch
	case strings.Contains(lower, "not a select"),
		strings.Contains(lower, "only select queries"):
		return KindNotSelect
	case strings.Contains(lower, "too many rows"):
		return KindTooManyRows
	}
	return KindUnknown
}
