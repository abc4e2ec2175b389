package service

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/sepich/mhtml-cache/pkg/codec"
	"github.com/sepich/mhtml-cache/pkg/decoder"
	"github.com/sepich/mhtml-cache/pkg/source"
)

// StatusError carries the HTTP status a failed operation maps to.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return "status " + strconv.Itoa(e.Code)
	}
	return "status " + strconv.Itoa(e.Code) + ": " + e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) Is(tgt error) bool {
	_, ok := tgt.(*StatusError)
	return ok
}

// statusOf maps decoder and source failures to a status code.
func statusOf(err error) int {
	var statusErr *StatusError
	var decodeErr *codec.DecodeError
	switch {
	case errors.As(err, &statusErr):
		return statusErr.Code
	case errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, &decoder.UnsupportedDocumentTypeError{}):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, decoder.ErrMalformedContainer), errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
