package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/joseph-ayodele/order-intake/constants"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDatabase         = errors.New("database error")
	ErrValidation       = errors.New("validation failed")
	ErrLocationNotFound = errors.New("location not found")
	ErrRunInProgress    = errors.New("a run for this category is already in progress")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Kind classifies a per-record failure.
type Kind string

const (
	KindExtraction       Kind = "ExtractionError"
	KindFieldParse       Kind = "FieldParseError"
	KindLocationNotFound Kind = "LocationNotFound"
	KindPersistence      Kind = "PersistenceError"
	KindRemoteAPI        Kind = "RemoteAPIError"
	KindWorkflowStep     Kind = "WorkflowStepError"
)

// RecordError is a failure scoped to one order. It is caught at the record
// boundary and turned into a ledger entry; it never aborts a run.
type RecordError struct {
	Kind  Kind
	BOL   string
	Stage string
	Role  constants.StopRole
	Err   error
}

func (e *RecordError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("%s %s [%s] %s: %v", e.Stage, e.Kind, e.Role, e.BOL, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Stage, e.Kind, e.BOL, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// NewRecordError builds a RecordError for bol.
func NewRecordError(kind Kind, stage, bol string, err error) *RecordError {
	return &RecordError{Kind: kind, Stage: stage, BOL: bol, Err: err}
}

// ForStop scopes e to one stop role.
func (e *RecordError) ForStop(role constants.StopRole) *RecordError {
	e.Role = role
	return e
}

// StageError means a whole stage is unusable; the run is aborted.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// IsStageFatal reports whether err should abort the run.
func IsStageFatal(err error) bool {
	var se *StageError
	return errors.As(err, &se)
}

// HTTPStatus maps an error returned by a run to the status the trigger replies with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
