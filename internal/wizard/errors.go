package wizard

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	CodeValidation = "validation"
	CodeSubmitted  = "submitted"
	CodeNotReady   = "not_ready"
	CodeNotFound   = "not_found"
	CodeInternal   = "internal"
)

// Error is returned by every session operation that the caller should
// surface. Fields maps a record field to its message for validation errors.
type Error struct {
	Code    string
	Message string
	Fields  map[string]string
	Status  int
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, "; "))
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSubmitted, CodeNotReady:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func newError(code, message string, fields map[string]string) *Error {
	return &Error{Code: code, Message: message, Fields: fields, Status: statusForCode(code)}
}

// ErrSubmitted is returned when a submitted record would be mutated.
var ErrSubmitted = newError(CodeSubmitted, "the valuation has already been submitted", nil)

func NewValidationError(fields map[string]string) *Error {
	return newError(CodeValidation, "please correct the highlighted fields", fields)
}

func NewNotReadyError(message string) *Error {
	return newError(CodeNotReady, message, nil)
}

func NewNotFoundError(message string) *Error {
	return newError(CodeNotFound, message, nil)
}

func NewInternalError(message string) *Error {
	return newError(CodeInternal, message, nil)
}
