// Package anonymous issues the session tokens that identify guest carts.
package anonymous

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"storefront/internal/domain"
)

var ErrInvalidToken = errors.New("invalid session token")

// Session is returned to a guest once and replayed in X-Session-Token.
type Session struct {
	Token      string    `json:"sessionToken"`
	SessionID  string    `json:"sessionId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TTLSeconds int       `json:"expiresIn"`
}

// tokenStore maps session tokens to session ids until they expire.
// Validate reports unknown or expired tokens with ok false.
type tokenStore interface {
	Issue(ctx context.Context, sessionID string, ttl time.Duration) (string, time.Time, error)
	Validate(ctx context.Context, token string) (meta tokenMeta, ok bool, err error)
	Revoke(ctx context.Context, token string) error
}

type Service struct {
	tokens tokenStore
	ttl    time.Duration
	logger *log.Logger
}

// New creates a Service that keeps tokens in process. Zero ttl means 30 days.
func New(ttl time.Duration) *Service {
	return newService(newTokenManager(time.Now), ttl, nil)
}

// NewRedis creates a Service whose tokens live in Redis, so sessions survive
// restarts and are shared by every API instance.
func NewRedis(client *redis.Client, ttl time.Duration, logger *log.Logger) *Service {
	return newService(newRedisTokenStore(client), ttl, logger)
}

func newService(tokens tokenStore, ttl time.Duration, logger *log.Logger) *Service {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{tokens: tokens, ttl: ttl, logger: logger}
}

// Issue starts a new guest session with a fresh cart owner id.
func (s *Service) Issue(ctx context.Context) (Session, error) {
	sessionID := uuid.NewString()
	token, expiresAt, err := s.tokens.Issue(ctx, sessionID, s.ttl)
	if err != nil {
		s.logger.Printf("anonymous: issue session error=%v", err)
		return Session{}, fmt.Errorf("issue session: %w: %v", domain.ErrUnavailable, err)
	}
	return Session{Token: token, SessionID: sessionID, ExpiresAt: expiresAt, TTLSeconds: s.TTLSeconds()}, nil
}

// Lookup resolves a token to its session id.
func (s *Service) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	meta, ok, err := s.tokens.Validate(ctx, token)
	if err != nil {
		s.logger.Printf("anonymous: lookup session error=%v", err)
		return "", fmt.Errorf("lookup session: %w: %v", domain.ErrUnavailable, err)
	}
	if !ok {
		return "", ErrInvalidToken
	}
	return meta.SessionID, nil
}

// Revoke ends a guest session. Unknown tokens are ignored.
func (s *Service) Revoke(ctx context.Context, token string) {
	if err := s.tokens.Revoke(ctx, token); err != nil {
		s.logger.Printf("anonymous: revoke session error=%v", err)
	}
}

func (s *Service) TTLSeconds() int {
	return int(s.ttl.Seconds())
}
