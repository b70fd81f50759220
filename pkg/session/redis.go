package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/safetydesk/causemap/pkg/errors"
)

// keyPrefix namespaces session keys in a shared Redis deployment.
const keyPrefix = "causemap:session:"

// RedisStore is a Redis-backed session store for multi-instance
// deployments. Expiry is delegated to Redis TTLs, so Cleanup is a no-op.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a session store on an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Get is on the auth path of every request, so a transient Redis failure
// is retried before it turns into a login error.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	var data []byte
	err := errors.RetryWithBackoff(ctx, func() error {
		b, err := s.client.Get(ctx, redisKey(sessionID)).Bytes()
		if err == redis.Nil {
			data = nil
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeNetwork, err, "redis get session")
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "parse session")
	}
	if sess.IsExpired() {
		_ = s.client.Del(ctx, redisKey(sessionID)).Err()
		return nil, nil
	}
	return &sess, nil
}

func (s *RedisStore) Set(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "marshal session")
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New(errors.ErrCodeSessionExpired, "session %s already expired", sess.ID)
	}
	if err := s.client.Set(ctx, redisKey(sess.ID), data, ttl).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "redis set session")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeNetwork, err, "redis delete session")
	}
	return nil
}

// Cleanup is a no-op: Redis expires sessions via key TTLs.
func (s *RedisStore) Cleanup(ctx context.Context) error { return nil }

var _ Store = (*RedisStore)(nil)
