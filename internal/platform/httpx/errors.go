package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by handlers.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// ErrorMapping binds a domain error to an HTTP status.
type ErrorMapping struct {
	Err    error
	Status int
	Title  string
}

// Map is shorthand for building an ErrorMapping.
func Map(err error, status int, title string) ErrorMapping {
	return ErrorMapping{Err: err, Status: status, Title: title}
}

var defaultMappings = []ErrorMapping{
	{Err: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Err: ErrConflict, Status: http.StatusConflict, Title: "Conflict"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
}

// RespondError maps err to an RFC7807 response. Package specific mappings are
// checked before the shared defaults; anything unmatched is a 500 with no detail.
func RespondError(w http.ResponseWriter, err error, mappings ...ErrorMapping) {
	status, title := Classify(err, mappings...)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	Problem(w, status, title, detail)
}

// Classify resolves the status and title RespondError would use for err.
func Classify(err error, mappings ...ErrorMapping) (int, string) {
	for _, group := range [][]ErrorMapping{mappings, defaultMappings} {
		for _, m := range group {
			if m.Err != nil && errors.Is(err, m.Err) {
				return m.Status, m.Title
			}
		}
	}
	return http.StatusInternalServerError, "Internal Error"
}
