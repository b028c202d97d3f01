package lock

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only when it still carries our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// extendScript renews the TTL only when the key still carries our token.
const extendScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`

// RedisLock is an InstanceLock stored as a Redis key with a TTL that is
// refreshed while held, so a crashed holder frees it after one TTL.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisLock creates a RedisLock on key.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	host, _ := os.Hostname()
	return &RedisLock{
		client: client,
		key:    key,
		token:  host + ":" + strconv.Itoa(os.Getpid()),
		ttl:    ttl,
	}
}

func (l *RedisLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		owner, _ := l.client.Get(ctx, l.key).Result()
		return fmt.Errorf("%w: %s", ErrHeld, owner)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	refreshCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.refresh(refreshCtx, l.done)
	return nil
}

func (l *RedisLock) refresh(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := l.extend(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Str("key", l.key).Msg("instance lock refresh failed")
				}
				continue
			}
			if !held {
				log.Error().Str("key", l.key).Msg("instance lock lost to another holder")
				return
			}
		}
	}
}

// extend renews the TTL if the key is still ours and reports whether it was.
func (l *RedisLock) extend(ctx context.Context) (bool, error) {
	n, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis extend: %w", err)
	}
	return n == 1, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		<-l.done
		l.cancel = nil
	}
	l.mu.Unlock()

	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}
