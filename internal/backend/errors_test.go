// ABOUTME: Tests for error-kind classification of backend detail strings
// ABOUTME: Each documented backend message must map to its structured Kind

package backend

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDetail_DocumentedMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		detail string
		want   Kind
	}{
		{
			name:   "invalid credentials",
			status: http.StatusUnauthorized,
			detail: "Invalid credentials",
			want:   KindAuth,
		},
		{
			name:   "expired token",
			status: http.StatusUnauthorized,
			detail: "Invalid or expired token",
			want:   KindAuth,
		},
		{
			name:   "missing bearer header",
			status: http.StatusForbidden,
			detail: "Not authenticated",
			want:   KindAuth,
		},
		{
			name:   "admin gate",
			status: http.StatusForbidden,
			detail: "Admin access required",
			want:   KindForbidden,
		},
		{
			name:   "no schema uploaded",
			status: http.StatusBadRequest,
			detail: "Please contact your administrator to upload a database schema before using the chat. You need a schema to generate SQL queries.",
			want:   KindSchemaMissing,
		},
		{
			name:   "prompt matches no tables",
			status: http.StatusBadRequest,
			detail: "Your query does not match any tables in your database schema. Please ask about specific tables or columns.",
			want:   KindSchemaMismatch,
		},
		{
			name:   "prompt ignores schema",
			status: http.StatusBadRequest,
			detail: "The prompt did not reference your database schema. Please ask a question that mentions your tables/columns.",
			want:   KindSchemaMismatch,
		},
		{
			name:   "generated non-select",
			status: http.StatusBadRequest,
			detail: "Generated SQL is not a SELECT. For safety only SELECT queries are allowed.",
			want:   KindNotSelect,
		},
		{
			name:   "run-query non-select",
			status: http.StatusBadRequest,
			detail: "Only SELECT queries are allowed for safety",
			want:   KindNotSelect,
		},
		{
			name:   "row limit overflow",
			status: http.StatusBadRequest,
			detail: "Query returned too many rows; please lower the limit and try again",
			want:   KindTooManyRows,
		},
		{
			name:   "session not found",
			status: http.StatusNotFound,
			detail: "Session not found",
			want:   KindNotFound,
		},
		{
			name:   "user not found",
			status: http.StatusNotFound,
			detail: "User not found",
			want:   KindNotFound,
		},
		{
			name:   "throttled",
			status: http.StatusTooManyRequests,
			detail: "Rate limit exceeded: 30 per 1 minute",
			want:   KindRateLimited,
		},
		{
			name:   "unrecognized 400",
			status: http.StatusBadRequest,
			detail: "Invalid role",
			want:   KindUnknown,
		},
		{
			name:   "unrecognized 500",
			status: http.StatusInternalServerError,
			detail: "Failed to generate SQL: upstream exploded",
			want:   KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyDetail(tt.status, tt.detail),
				"detail %q at status %d", tt.detail, tt.status)
		})
	}
}

func TestKindOf(t *testing.T) {
	be := &Error{Status: 400, Kind: KindTooManyRows, Detail: "too many rows"}

	assert.Equal(t, KindTooManyRows, KindOf(be))
	assert.Equal(t, KindTooManyRows, KindOf(fmt.Errorf("accept failed: %w", be)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("dial tcp: connection refused")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "too_many_rows", KindTooManyRows.String())
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, "schema_missing", KindSchemaMissing.String())
}

func TestError_ErrorText(t *testing.T) {
	withDetail := &Error{Status: 400, Detail: "Invalid role"}
	assert.Equal(t, "Invalid role", withDetail.Error())

	bare := &Error{Status: 503}
	assert.Equal(t, "backend returned status 503", bare.Error())
}
