package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/rollcall/internal/domain/edit"
	"github.com/rpggio/rollcall/internal/domain/stats"
)

func TestDecodeJSON_KeepsNumbers(t *testing.T) {
	var req SetFieldRequest
	require.NoError(t, DecodeJSON(strings.NewReader(`{"field":"boys","value":70}`), &req))
	require.Equal(t, "boys", req.Field)
	require.Equal(t, json.Number("70"), req.Value)

	require.Error(t, DecodeJSON(strings.NewReader(`{`), &req))
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{fmt.Errorf("%w: %w", edit.ErrValidation, stats.ErrInvalidRecord), http.StatusUnprocessableEntity, CodeValidationFailed, "counts cannot be negative"},
		{edit.ErrSessionNotFound, http.StatusNotFound, CodeNotFound, "edit session not found"},
		{fmt.Errorf("%w: %q", edit.ErrUnknownField, "x"), http.StatusBadRequest, CodeBadRequest, `unknown field: "x"`},
		{fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal, "internal error"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteDomainError(rec, tt.err)
		require.Equal(t, tt.status, rec.Code)

		var body Error
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tt.code, body.Code)
		require.Equal(t, tt.message, body.Message)
	}
}
