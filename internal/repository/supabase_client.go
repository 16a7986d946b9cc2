package repository

import (
	"fmt"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"github.com/supabase-community/supabase-go"
)

// SupabaseClient implements the domain.SupabaseClient interface
type SupabaseClient struct {
	client *supabase.Client
	config domain.Config
	logger domain.Logger
}

// NewSupabaseClient creates a new Supabase client instance
func NewSupabaseClient(config domain.Config, logger domain.Logger) *SupabaseClient {
	return &SupabaseClient{
		config: config,
		logger: logger,
	}
}

// DB returns the underlying client; nil until Initialize succeeds.
func (s *SupabaseClient) DB() *supabase.Client {
	return s.client
}

// Initialize establishes a connection to Supabase
func (s *SupabaseClient) Initialize() error {
	supabaseURL := s.config.GetSupabaseURL()
	supabaseKey := s.config.GetSupabaseKey()

	if supabaseURL == "" || supabaseKey == "" {
		return fmt.Errorf("supabase URL and key must be provided")
	}

	client, err := supabase.NewClient(supabaseURL, supabaseKey, &supabase.ClientOptions{})
	if err != nil {
		return fmt.Errorf("failed to create Supabase client: %w", err)
	}

	s.client = client
	s.logger.Info("Supabase client initialized successfully", "url", supabaseURL)
	return nil
}

// ValidateToken validates a Supabase JWT token and returns user info
func (s *SupabaseClient) ValidateToken(token string) (*domain.SupabaseUser, error) {
	if s.client == nil {
		return nil, fmt.Errorf("supabase client not initialized")
	}

	// GoTrue ignores client-level headers, so the token goes through WithToken.
	user, err := s.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user not found", domain.ErrInvalidToken)
	}

	return &domain.SupabaseUser{
		ID:           user.ID.String(),
		Email:        user.Email,
		UserMetadata: user.UserMetadata,
		CreatedAt:    user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:    user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}
