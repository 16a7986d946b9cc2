package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"
)

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusTeapot, "nope")

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content type application/json, got %s", ct)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"error":"nope"}` {
		t.Fatalf("unexpected response body: %s", rr.Body.String())
	}
}

func TestWriteError_EscapesMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusBadRequest, `bad "quote"`)

	if strings.TrimSpace(rr.Body.String()) != `{"error":"bad \"quote\""}` {
		t.Fatalf("unexpected response body: %s", rr.Body.String())
	}
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", apperrors.NewValidationError("title cannot be empty"), http.StatusBadRequest, `"type":"validation"`},
		{"not found", apperrors.NewNotFoundError("document not found"), http.StatusNotFound, `"error":"document not found"`},
		{"wrapped storage", fmt.Errorf("save: %w", apperrors.NewStorageError("failed to store", errors.New("boom"))), http.StatusServiceUnavailable, `"type":"storage"`},
		{"password", apperrors.NewPasswordProtectedError("archive is encrypted", nil), http.StatusUnprocessableEntity, `"type":"password_protected"`},
		{"plain error", errors.New("db exploded"), http.StatusInternalServerError, `"error":"Internal server error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeAppError(rr, NewMockHandlerLogger(), tt.err)

			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.body) {
				t.Fatalf("unexpected response body: %s", rr.Body.String())
			}
			if strings.Contains(rr.Body.String(), "boom") || strings.Contains(rr.Body.String(), "exploded") {
				t.Fatalf("expected cause to stay out of the response: %s", rr.Body.String())
			}
		})
	}
}
