package domain

import "github.com/supabase-community/supabase-go"

// SupabaseUser represents a user from Supabase Auth
type SupabaseUser struct {
	ID           string
	Email        string
	UserMetadata map[string]interface{}
	CreatedAt    string
	UpdatedAt    string
}

type SupabaseClient interface {
	Initialize() error
	ValidateToken(token string) (*SupabaseUser, error)

	DB() *supabase.Client
}
