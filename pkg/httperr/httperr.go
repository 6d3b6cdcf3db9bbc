// Package httperr maps engine errors onto the HTTP surface.
package httperr

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/zekoder/zecore/pkg/apperr"
)

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}

// Status returns the HTTP status code for an engine error.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsBadRequest(err):
		return http.StatusBadRequest
	case apperr.IsForbidden(err):
		return http.StatusForbidden
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	case apperr.IsConflict(err):
		return http.StatusConflict
	case apperr.IsUnknownColumn(err), apperr.IsUnknownOperator(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Body builds the JSON error body. Unknown-column errors carry the offending
// field under field_name; internal causes are never exposed.
func Body(err error) map[string]any {
	status := Status(err)
	if status == http.StatusInternalServerError {
		return map[string]any{"detail": "internal error"}
	}
	body := map[string]any{"detail": err.Error()}
	if colErr, ok := errors.AsType[*apperr.UnknownColumnError](err); ok {
		body["field_name"] = colErr.Column
	}
	return body
}

// Write renders err as a JSON response.
func Write(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error err=%v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Body(err))
}
