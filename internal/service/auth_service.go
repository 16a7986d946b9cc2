package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

const tokenCacheTTL = 30 * time.Second

type tokenCacheEntry struct {
	user      *domain.SupabaseUser
	expiresAt time.Time
}

type authService struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger

	tokenCacheMu sync.RWMutex
	tokenCache   map[string]tokenCacheEntry
	now          func() time.Time
}

func NewAuthService(
	supabaseClient domain.SupabaseClient,
	logger domain.Logger,
) *authService {
	return &authService{
		supabaseClient: supabaseClient,
		logger:         logger,
		tokenCache:     make(map[string]tokenCacheEntry),
		now:            time.Now,
	}
}

// ValidateToken resolves a bearer token to its user. Successful lookups are
// cached briefly so a burst of requests costs one round trip.
func (s *authService) ValidateToken(token string) (*domain.SupabaseUser, error) {
	if token == "" {
		return nil, fmt.Errorf("invalid token: %w", domain.ErrInvalidToken)
	}
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	now := s.now()

	s.tokenCacheMu.RLock()
	entry, ok := s.tokenCache[key]
	s.tokenCacheMu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.user, nil
	}

	user, err := s.supabaseClient.ValidateToken(token)
	if err != nil {
		s.logger.Error("Failed to validate token with Supabase", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	s.tokenCacheMu.Lock()
	for k, e := range s.tokenCache {
		if now.After(e.expiresAt) {
			delete(s.tokenCache, k)
		}
	}
	s.tokenCache[key] = tokenCacheEntry{user: user, expiresAt: now.Add(tokenCacheTTL)}
	s.tokenCacheMu.Unlock()
	return user, nil
}

// StaticAuthService accepts a fixed set of tokens. It backs local runs
// without Supabase.
type StaticAuthService struct {
	users map[string]*domain.SupabaseUser
}

// NewStaticAuthService parses "token:user,token:user".
func NewStaticAuthService(spec string) (*StaticAuthService, error) {
	users := make(map[string]*domain.SupabaseUser)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, ":")
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("invalid static token entry %q", pair)
		}
		users[token] = &domain.SupabaseUser{ID: user}
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no static tokens configured")
	}
	return &StaticAuthService{users: users}, nil
}

func (s *StaticAuthService) ValidateToken(token string) (*domain.SupabaseUser, error) {
	user, ok := s.users[token]
	if !ok {
		return nil, fmt.Errorf("invalid token: %w", domain.ErrInvalidToken)
	}
	return user, nil
}
