// Package apperr defines the error taxonomy shared by the search pipeline,
// the job queue, and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
)

// Sentinel errors. Wrap with the constructors below so errors.Is keeps
// working through eris chains.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrParse        = errors.New("unparseable provider output")
	ErrProvider     = errors.New("provider failure")
	ErrStore        = errors.New("store failure")
	ErrPartialBatch = errors.New("partial batch failure")
)

// taggedError carries a sentinel alongside a descriptive wrapped error.
type taggedError struct {
	kind error
	err  error
}

func (e *taggedError) Error() string { return e.err.Error() }

func (e *taggedError) Unwrap() []error { return []error{e.kind, e.err} }

func tag(kind error, err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, err: err}
}

// NotFound reports a missing company or job.
func NotFound(msg string) error {
	return tag(ErrNotFound, eris.New(msg))
}

// NotFoundf reports a missing company or job with formatting.
func NotFoundf(format string, args ...any) error {
	return tag(ErrNotFound, eris.Errorf(format, args...))
}

// Validation reports a missing or malformed request field.
func Validation(msg string) error {
	return tag(ErrValidation, eris.New(msg))
}

// Parse reports completion output that is not well-formed or does not match
// the expected schema shape.
func Parse(err error, msg string) error {
	return tag(ErrParse, eris.Wrap(err, msg))
}

// Provider reports a text-completion or web-scrape transport failure.
func Provider(err error, msg string) error {
	return tag(ErrProvider, eris.Wrap(err, msg))
}

// Store reports a persistence-layer failure.
func Store(err error, msg string) error {
	return tag(ErrStore, eris.Wrap(err, msg))
}

// PartialBatch reports a batch operation where some records failed while
// others succeeded.
func PartialBatch(err error, msg string) error {
	return tag(ErrPartialBatch, eris.Wrap(err, msg))
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsParse reports whether err is a ParseError.
func IsParse(err error) bool { return errors.Is(err, ErrParse) }

// IsPartialBatch reports whether err is a PartialBatchFailure.
func IsPartialBatch(err error) bool { return errors.Is(err, ErrPartialBatch) }

// HTTPStatus maps an error to the response status used by the serve handlers.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrParse), errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
