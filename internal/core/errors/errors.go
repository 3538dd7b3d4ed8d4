package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrForbidden    = errors.New("action forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Snapshot
	ErrSnapshotNotFound         = errors.New("snapshot not found")
	ErrUnsupportedSchemaVersion = errors.New("unsupported snapshot schema version")
	ErrSnapshotTypeRequired     = errors.New("snapshot type is required")
	ErrNotEnoughSnapshots       = errors.New("at least two snapshots are required")

	// Drill-down
	ErrUnknownStage        = errors.New("unknown stage identifier")
	ErrUnknownDateCategory = errors.New("unknown date category")

	// Enrichment
	ErrDetailsUnavailable = errors.New("ticket details unavailable")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal server error")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// ValidationErrors holds every violated invariant of a malformed snapshot or
// pipeline payload, keyed by the offending field path.
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`

	causes []error
}

// ValidationError is the name the rest of the codebase uses for the
// aggregated validation failure.
type ValidationError = ValidationErrors

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

// AddCause records a message for field and remembers err so callers can
// match it with errors.Is.
func (v *ValidationErrors) AddCause(field string, err error) {
	v.Add(field, err.Error())
	v.causes = append(v.causes, err)
}

// Merge copies every message of other under prefix.
func (v *ValidationErrors) Merge(prefix string, other *ValidationErrors) {
	if other == nil {
		return
	}
	for field, messages := range other.Errors {
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		v.Errors[key] = append(v.Errors[key], messages...)
	}
	v.causes = append(v.causes, other.causes...)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Fields returns the offending field paths in sorted order.
func (v *ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v.Errors))
	for field := range v.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, field := range v.Fields() {
		parts = append(parts, field+": "+strings.Join(v.Errors[field], "; "))
	}
	return fmt.Sprintf("validation failed: %d field(s) have errors (%s)", len(v.Errors), strings.Join(parts, ", "))
}

func (v *ValidationErrors) Unwrap() []error {
	return v.causes
}

// UnknownStageError reports a raw stage identifier outside the stage table.
// It is surfaced as a warning; the affected tickets are left out of
// stage-scoped results.
type UnknownStageError struct {
	StageID string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage identifier %q", e.StageID)
}

func (e *UnknownStageError) Unwrap() error {
	return ErrUnknownStage
}

// EnrichmentFailure reports that ticket details could not be fetched for
// some ids. Callers fall back to the snapshot-embedded fields.
type EnrichmentFailure struct {
	TicketIDs []int64
	Err       error
}

func (e *EnrichmentFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ticket detail enrichment failed for %d ticket(s): %v", len(e.TicketIDs), e.Err)
	}
	return fmt.Sprintf("ticket details missing for %d ticket(s)", len(e.TicketIDs))
}

func (e *EnrichmentFailure) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDetailsUnavailable
}

// NavigationError is returned when a drill-down level is requested without
// a selector its parent level must have provided.
type NavigationError struct {
	Level   int
	Missing string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("drill-down level %d requires %s", e.Level, e.Missing)
}
