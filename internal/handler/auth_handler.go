package handler

import (
	"net/http"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct{}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

type identityResponse struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// ValidateToken reports the identity the bearer token resolves to.
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{ID: user.ID, Email: user.Email})
}
