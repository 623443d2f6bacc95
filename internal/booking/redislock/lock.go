// Package redislock guards booking creation across gateway replicas: only
// one attempt per venue response may be in flight at a time.
package redislock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "booking_lock:"

type Lock struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Lock{Client: client, TTL: ttl}
}

// Acquire takes the per-response lock for this attempt. Returns false when
// another attempt already holds it. The TTL bounds how long a crashed
// replica can keep a response blocked.
func (l *Lock) Acquire(ctx context.Context, responseID, attemptID string) (bool, error) {
	return l.Client.SetNX(ctx, keyPrefix+responseID, attemptID, l.TTL).Result()
}

// Release drops the lock, but only if this attempt still owns it. A lock
// that expired and was re-acquired by someone else is left alone.
func (l *Lock) Release(ctx context.Context, responseID, attemptID string) error {
	key := keyPrefix + responseID
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == attemptID {
		_, err = l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// IsLocked reports whether any attempt currently holds the response.
func (l *Lock) IsLocked(ctx context.Context, responseID string) (bool, error) {
	_, err := l.Client.Get(ctx, keyPrefix+responseID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
