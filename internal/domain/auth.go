package domain

// AuthService resolves a bearer token to the owner it belongs to.
type AuthService interface {
	ValidateToken(token string) (*SupabaseUser, error)
}
