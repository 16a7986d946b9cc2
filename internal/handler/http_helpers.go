package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"
)

type contextKey string

const (
	userContextKey  contextKey = "user"
	tokenContextKey contextKey = "token"
)

// GetUserFromContext extracts the authenticated user from request context
func GetUserFromContext(r *http.Request) (*domain.SupabaseUser, bool) {
	user, ok := r.Context().Value(userContextKey).(*domain.SupabaseUser)
	return user, ok
}

// GetTokenFromContext extracts the authentication token from request context
func GetTokenFromContext(r *http.Request) (string, bool) {
	token, ok := r.Context().Value(tokenContextKey).(string)
	return token, ok
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response (helper function)
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type errorBody struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Details string `json:"details,omitempty"`
}

// writeAppError maps err onto its status code. Causes of storage and internal
// failures are logged, never returned to the caller.
func writeAppError(w http.ResponseWriter, logger domain.Logger, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.NewInternalError("Internal server error", err)
	}
	switch appErr.Type {
	case apperrors.ErrorTypeStorage, apperrors.ErrorTypeInternal:
		logger.Error("Request failed", err, "type", appErr.Type)
	}
	writeJSON(w, appErr.StatusCode, errorBody{
		Error:   appErr.Message,
		Type:    string(appErr.Type),
		Details: appErr.Details,
	})
}

// ownerID returns the authenticated caller's id or writes a 401.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := GetUserFromContext(r)
	if !ok || user.ID == "" {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return "", false
	}
	return user.ID, true
}
