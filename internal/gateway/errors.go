package gateway

import (
	"errors"
	"fmt"
)

// Postgres/PostgREST codes the client reacts to.
const (
	codeUniqueViolation = "23505"    // duplicate key
	codeNoRows          = "PGRST116" // zero rows where one was required
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway status %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a duplicate-key rejection. Callers treat
// these as benign for idempotent inserts (a like that already exists).
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeUniqueViolation || apiErr.StatusCode == 409
}

// IsNotFound reports whether err means the requested single row does not
// exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeNoRows || apiErr.StatusCode == 404 || apiErr.StatusCode == 406
}

// NotFound builds the error a single-row query returns for zero rows.
func NotFound(collection string) error {
	return &APIError{StatusCode: 406, Code: codeNoRows, Message: collection + ": no rows"}
}

// Conflict builds a duplicate-key error.
func Conflict(collection string) error {
	return &APIError{StatusCode: 409, Code: codeUniqueViolation, Message: collection + ": duplicate key"}
}
