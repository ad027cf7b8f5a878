package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rpggio/rollcall/internal/domain/edit"
)

// Error codes carried in JSON error bodies.
const (
	CodeBadRequest       = "bad_request"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeValidationFailed = "validation_failed"
	CodeInternal         = "internal"
)

const maxBodyBytes = 64 << 10

// Error is the JSON error body.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeJSON reads a JSON request body into out, keeping numbers as json.Number.
func DecodeJSON(body io.Reader, out any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	return nil
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Error{Code: code, Message: message})
}

// WriteDomainError maps a domain error to a status and writes it.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, edit.ErrValidation):
		WriteError(w, http.StatusUnprocessableEntity, CodeValidationFailed, edit.ErrValidation.Error())
	case errors.Is(err, edit.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, edit.ErrSessionNotFound.Error())
	case errors.Is(err, edit.ErrUnknownField):
		WriteError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
