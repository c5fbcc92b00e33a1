package errs

import (
	"errors"
	"fmt"
)

// Kind sentinels. Match with errors.Is(err, errs.ErrShape).
var (
	ErrData              = errors.New("DataError")
	ErrShape             = errors.New("ShapeError")
	ErrInsufficientData  = errors.New("InsufficientDataError")
	ErrConfig            = errors.New("ConfigError")
	ErrNumericDivergence = errors.New("NumericDivergenceError")
)

// Error is a pipeline failure tagged with its kind and the stage that detected it.
type Error struct {
	Kind  error
	Stage string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Is reports whether target is this error's kind sentinel.
func (e *Error) Is(target error) bool { return e.Kind == target }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func newf(kind error, stage, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// Data reports malformed or missing input values.
func Data(stage, format string, args ...interface{}) *Error {
	return newf(ErrData, stage, format, args...)
}

// Shape reports a feature-count or window-length mismatch.
func Shape(stage, format string, args ...interface{}) *Error {
	return newf(ErrShape, stage, format, args...)
}

// InsufficientData reports fewer records than one window needs.
func InsufficientData(stage, format string, args ...interface{}) *Error {
	return newf(ErrInsufficientData, stage, format, args...)
}

// Config reports missing or invalid configuration.
func Config(stage, format string, args ...interface{}) *Error {
	return newf(ErrConfig, stage, format, args...)
}

// NumericDivergence reports a non-finite loss or metric.
func NumericDivergence(stage, format string, args ...interface{}) *Error {
	return newf(ErrNumericDivergence, stage, format, args...)
}

// Wrap attaches a cause to the error and returns it.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

var kinds = []error{ErrData, ErrShape, ErrInsufficientData, ErrConfig, ErrNumericDivergence}

// KindOf returns the kind sentinel carried by err, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// StageOf returns the stage of the outermost pipeline error in err's chain.
func StageOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	switch KindOf(err) {
	case nil:
		if err == nil {
			return 0
		}
		return 1
	case ErrConfig:
		return 2
	case ErrData:
		return 3
	case ErrShape:
		return 4
	case ErrInsufficientData:
		return 5
	case ErrNumericDivergence:
		return 6
	default:
		return 1
	}
}
