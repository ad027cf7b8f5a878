package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/rollcall/internal/domain/edit"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/snapshot"
	"github.com/rpggio/rollcall/internal/storage"
)

// APIError represents an MCP tool error.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var errForbidden = &APIError{Code: "FORBIDDEN", Message: "editing requires the admin secret", RecoveryHint: "Send it as a bearer token"}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, edit.ErrValidation):
		return &APIError{Code: "VALIDATION_FAILED", Message: edit.ErrValidation.Error(), RecoveryHint: "Fix the draft and publish again"}
	case errors.Is(err, edit.ErrSessionNotFound):
		return &APIError{Code: "SESSION_NOT_FOUND", Message: "edit session not found", RecoveryHint: "Call open_edit_session"}
	case errors.Is(err, edit.ErrUnknownField):
		return &APIError{Code: "UNKNOWN_FIELD", Message: err.Error(), RecoveryHint: "Use total, boys or girls"}
	case errors.Is(err, stats.ErrInvalidRecord):
		return &APIError{Code: "INVALID_RECORD", Message: err.Error(), RecoveryHint: "Use non-negative counts with total equal to boys + girls"}
	case errors.Is(err, snapshot.ErrDecode):
		return &APIError{Code: "DECODE_FAILED", Message: "snapshot token is not readable"}
	case errors.Is(err, storage.ErrStorage):
		return &APIError{Code: "STORAGE_UNAVAILABLE", Message: "durable storage failed", RecoveryHint: "Retry later"}
	default:
		return nil
	}
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}
