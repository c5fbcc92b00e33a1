package http

import (
	"errors"
	"fmt"
	"net/http"

	"RecessionLens/internal/domain/errs"
)

// AppError is an error rendered to API clients. Err stays server side.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Field: field, Status: status}
}

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

func TooManyRequestsError(message string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", "", message, http.StatusTooManyRequests)
}

type kindMapping struct {
	code   string
	status int
	public string // replaces the error text; empty shows it
}

// Input problems are the caller's to fix and are shown verbatim; the others
// are server faults and get a fixed message.
var pipelineKinds = map[error]kindMapping{
	errs.ErrData:              {"ERR_DATA", http.StatusBadRequest, ""},
	errs.ErrShape:             {"ERR_SHAPE", http.StatusUnprocessableEntity, ""},
	errs.ErrInsufficientData:  {"ERR_INSUFFICIENT_DATA", http.StatusUnprocessableEntity, ""},
	errs.ErrConfig:            {"ERR_CONFIG", http.StatusInternalServerError, "service is misconfigured"},
	errs.ErrNumericDivergence: {"ERR_NUMERIC", http.StatusInternalServerError, "numeric failure"},
}

// FromPipelineError maps err to an AppError by its pipeline kind and adds
// the failing stage as a param. Unknown errors become a generic 500.
func FromPipelineError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	m, ok := pipelineKinds[errs.KindOf(err)]
	if !ok {
		return InternalError("Something went wrong").WithError(err)
	}
	msg := m.public
	if msg == "" {
		msg = err.Error()
	}
	e := NewAppError(m.code, "", msg, m.status).WithError(err)
	if stage := errs.StageOf(err); stage != "" {
		e.WithParam("stage", stage)
	}
	return e
}
