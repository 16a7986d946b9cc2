package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"golang.org/x/time/rate"
)

// AuthMiddleware validates bearer tokens and stores the caller in the request context.
type AuthMiddleware struct {
	authService domain.AuthService
	logger      domain.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService domain.AuthService, logger domain.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		logger:      logger,
	}
}

// Middleware rejects requests without a valid bearer token.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Extract token from "Bearer <token>" format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		token := parts[1]
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Token required")
			return
		}

		user, err := m.authService.ValidateToken(token)
		if err != nil || user == nil {
			m.logger.Warn("Token validation failed", "token", redact(token))
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func redact(token string) string {
	if len(token) <= 10 {
		return "..."
	}
	return token[:10] + "..."
}

const limiterIdleTTL = 10 * time.Minute

type ownerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SubmitLimiter throttles write requests per owner with a token bucket.
type SubmitLimiter struct {
	mu       sync.Mutex
	owners   map[string]*ownerLimiter
	limit    rate.Limit
	burst    int
	lastTrim time.Time
	now      func() time.Time
}

// NewSubmitLimiter allows perSecond sustained submissions per owner with the
// given burst. A non-positive rate disables limiting.
func NewSubmitLimiter(perSecond float64, burst int) *SubmitLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &SubmitLimiter{
		owners: make(map[string]*ownerLimiter),
		limit:  limit,
		burst:  burst,
		now:    time.Now,
	}
}

// Allow reports whether owner may submit now, and otherwise how long to wait.
func (l *SubmitLimiter) Allow(owner string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.trim(now)
	ol, ok := l.owners[owner]
	if !ok {
		ol = &ownerLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.owners[owner] = ol
	}
	ol.lastSeen = now

	res := ol.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// trim drops limiters of owners idle longer than limiterIdleTTL.
func (l *SubmitLimiter) trim(now time.Time) {
	if now.Sub(l.lastTrim) < limiterIdleTTL {
		return
	}
	l.lastTrim = now
	for owner, ol := range l.owners {
		if now.Sub(ol.lastSeen) > limiterIdleTTL {
			delete(l.owners, owner)
		}
	}
}

// Middleware limits POST requests of the authenticated owner. It must run
// after AuthMiddleware.
func (l *SubmitLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		user, ok := GetUserFromContext(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if allowed, wait := l.Allow(user.ID); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "Too many submissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}
