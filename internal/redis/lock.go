package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

// Locker guards the conflict-check-then-save critical section. Both the
// practitioner and the room must be held so that two concurrent bookings
// sharing either resource serialize against each other.
type Locker interface {
	WithBookingLock(ctx context.Context, practitionerID, roomID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisBookingLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBookingLocker creates a locker that uses one Redis key per
// booked resource.
func NewRedisBookingLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisBookingLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisBookingLocker) WithBookingLock(ctx context.Context, practitionerID, roomID uuid.UUID, fn func(ctx context.Context) error) error {
	keys := []string{
		fmt.Sprintf("lock:practitioner:%s", practitionerID),
		fmt.Sprintf("lock:room:%s", roomID),
	}
	// Deterministic acquisition order prevents deadlock between two
	// bookings that share one resource but not the other.
	sort.Strings(keys)

	token := uuid.NewString()

	var held []string
	for _, key := range keys {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			l.releaseAll(ctx, held, token)
			return fmt.Errorf("acquire booking lock %s: %w", key, err)
		}
		if !ok {
			l.releaseAll(ctx, held, token)
			return ErrLockNotAcquired
		}
		held = append(held, key)
	}

	defer l.releaseAll(ctx, held, token)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisBookingLocker) releaseAll(ctx context.Context, keys []string, token string) {
	for _, key := range keys {
		// Unreleased locks fall back to the TTL.
		_, _ = unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	}
}

// NopLocker runs the critical section without locking. Used in tests and
// in single-writer deployments where the storage transaction alone
// provides the atomicity guarantee.
type NopLocker struct{}

func (NopLocker) WithBookingLock(ctx context.Context, _, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
