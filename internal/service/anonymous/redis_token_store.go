package anonymous

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionTokenPrefix = "session:token:"
	issueAttempts      = 5
)

// redisTokenStore keeps one key per token carrying the session id; Redis
// expires the key with the session.
type redisTokenStore struct {
	client *redis.Client
	now    func() time.Time
}

func newRedisTokenStore(client *redis.Client) *redisTokenStore {
	return &redisTokenStore{client: client, now: time.Now}
}

func (s *redisTokenStore) Issue(ctx context.Context, sessionID string, ttl time.Duration) (string, time.Time, error) {
	meta := tokenMeta{SessionID: sessionID, ExpiresAt: s.now().Add(ttl).UTC()}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", time.Time{}, err
	}
	for attempt := 0; attempt < issueAttempts; attempt++ {
		token, err := randomToken()
		if err != nil {
			return "", time.Time{}, err
		}
		ok, err := s.client.SetNX(ctx, sessionTokenPrefix+token, data, ttl).Result()
		if err != nil {
			return "", time.Time{}, err
		}
		if ok {
			return token, meta.ExpiresAt, nil
		}
	}
	return "", time.Time{}, errors.New("session token collision")
}

func (s *redisTokenStore) Validate(ctx context.Context, token string) (tokenMeta, bool, error) {
	raw, err := s.client.Get(ctx, sessionTokenPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return tokenMeta{}, false, nil
	}
	if err != nil {
		return tokenMeta{}, false, err
	}
	var meta tokenMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return tokenMeta{}, false, fmt.Errorf("decode session token: %w", err)
	}
	if s.now().After(meta.ExpiresAt) {
		return tokenMeta{}, false, nil
	}
	return meta, true, nil
}

func (s *redisTokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionTokenPrefix+token).Err()
}
