package bancache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTimeout bounds every Redis round trip of the ban list store.
const DefaultRedisTimeout = 2 * time.Second

// RedisClient is the part of *redis.Client the ban list store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisFileSystem keeps the ban list blob under a Redis key, so that several hosts share one list.
// The name passed to ReadFile and WriteFile is used as the key.
type RedisFileSystem struct {
	Client  RedisClient
	Timeout time.Duration
}

func (fs *RedisFileSystem) context() (context.Context, context.CancelFunc) {
	timeout := fs.Timeout
	if timeout <= 0 {
		timeout = DefaultRedisTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

// ReadFile returns the blob. A missing key reads as os.ErrNotExist.
func (fs *RedisFileSystem) ReadFile(name string) ([]byte, error) {
	ctx, cancel := fs.context()
	defer cancel()

	b, err := fs.Client.Get(ctx, name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis key %v: %w", name, os.ErrNotExist)
	}
	return b, err
}

// WriteFile replaces the blob. SET is atomic, so readers never see a partial list.
func (fs *RedisFileSystem) WriteFile(name string, data []byte) error {
	ctx, cancel := fs.context()
	defer cancel()

	return fs.Client.Set(ctx, name, data, 0).Err()
}

// Deletes the lock only if it still holds our token.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// ErrLockTimeout is returned when a RedisLocker could not get the lock in time.
var ErrLockTimeout = errors.New("timed out waiting for ban list lock")

type redisLocker struct {
	client RedisClient
	key    string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker creates a Locker on a Redis key. A holder that dies keeps the lock for at most ttl.
func NewRedisLocker(client RedisClient, key string, ttl time.Duration, wait time.Duration) Locker {
	return &redisLocker{client: client, key: key, ttl: ttl, wait: wait, poll: 25 * time.Millisecond}
}

func (l *redisLocker) Lock() (func(), error) {
	tb := make([]byte, 16)
	if _, err := rand.Read(tb); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(tb)

	deadline := time.Now().Add(l.wait)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRedisTimeout)
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		cancel()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		time.Sleep(l.poll)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRedisTimeout)
		defer cancel()
		l.client.Eval(ctx, unlockScript, []string{l.key}, token)
	}, nil
}
