package joblock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClientInterface defines the Redis operations used by the lock
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// lockTTL bounds how long a crashed run can keep a date's lock held.
const lockTTL = 30 * time.Minute

// Lock is a Redis-backed advisory lock keyed by job name and target date.
// It keeps two triggers of the same job from mutating the same date at once.
type Lock struct {
	client RedisClientInterface
}

// New creates a lock backed by the Redis server at addr
func New(addr string) (*Lock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Lock{client: client}, nil
}

// NewWithClient creates a lock with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Lock {
	return &Lock{client: client}
}

// Close closes the Redis connection
func (l *Lock) Close() error {
	return l.client.Close()
}

// Acquire takes the advisory lock for (job, date). On success it returns the
// owner token to release with; acquired is false when another run holds it.
func (l *Lock) Acquire(ctx context.Context, job string, date time.Time) (token string, acquired bool, err error) {
	key := lockKey(job, date)
	token = uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire %s lock: %w", job, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock when the caller still owns it. A lock that expired
// or changed owner is left alone.
func (l *Lock) Release(ctx context.Context, job string, date time.Time, token string) error {
	key := lockKey(job, date)

	val, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s lock: %w", job, err)
	}
	if val != token {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}

func lockKey(job string, date time.Time) string {
	return fmt.Sprintf("joblock:%s:%s", job, date.Format("2006-01-02"))
}
