package anonymous

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

type tokenMeta struct {
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type tokenManager struct {
	mu     sync.RWMutex
	tokens map[string]tokenMeta
	now    func() time.Time
	issued int
}

// sweepEvery controls how often Issue drops expired tokens.
const sweepEvery = 256

func newTokenManager(now func() time.Time) *tokenManager {
	return &tokenManager{
		tokens: make(map[string]tokenMeta),
		now:    now,
	}
}

func (m *tokenManager) Issue(_ context.Context, sessionID string, ttl time.Duration) (string, time.Time, error) {
	token, err := randomToken()
	if err != nil {
		return "", time.Time{}, err
	}
	meta := tokenMeta{
		SessionID: sessionID,
		ExpiresAt: m.now().Add(ttl),
	}
	m.mu.Lock()
	m.tokens[token] = meta
	m.issued++
	if m.issued%sweepEvery == 0 {
		m.sweepLocked()
	}
	m.mu.Unlock()
	return token, meta.ExpiresAt, nil
}

func (m *tokenManager) Validate(ctx context.Context, token string) (tokenMeta, bool, error) {
	m.mu.RLock()
	meta, ok := m.tokens[token]
	m.mu.RUnlock()
	if !ok {
		return tokenMeta{}, false, nil
	}
	if m.now().After(meta.ExpiresAt) {
		m.Revoke(ctx, token)
		return tokenMeta{}, false, nil
	}
	return meta, true, nil
}

func (m *tokenManager) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	delete(m.tokens, token)
	m.mu.Unlock()
	return nil
}

func (m *tokenManager) sweepLocked() {
	now := m.now()
	for token, meta := range m.tokens {
		if now.After(meta.ExpiresAt) {
			delete(m.tokens, token)
		}
	}
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
