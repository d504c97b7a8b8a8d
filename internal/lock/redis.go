package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix        = "helpdesk:lock:"
	defaultAcquireTimeout = 5 * time.Second
	releaseTimeout        = 2 * time.Second
)

// releaseScript deletes the key only while it still carries our token, so a lock that
// expired and was taken by another process is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// renewScript pushes the expiry out while the key still carries our token.
const renewScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`

var errContended = errors.New("lock held elsewhere")

// Redis is a Locker shared by every process talking to the same Redis. Locks expire
// after ttl so a crashed holder cannot wedge a ticket; a live holder keeps extending
// the expiry until it unlocks.
type Redis struct {
	client         redis.Cmdable
	ttl            time.Duration
	acquireTimeout time.Duration
	retryInitial   time.Duration
	retryMax       time.Duration
	renewEvery     time.Duration
	token          func() string
	logger         *zap.Logger
}

// RedisOption customizes a Redis locker.
type RedisOption func(*Redis)

// WithAcquireTimeout caps how long Acquire waits when ctx carries no earlier deadline.
func WithAcquireTimeout(d time.Duration) RedisOption {
	return func(r *Redis) { r.acquireTimeout = d }
}

// WithRetryInterval sets the backoff bounds between SET NX attempts.
func WithRetryInterval(initial, max time.Duration) RedisOption {
	return func(r *Redis) {
		r.retryInitial = initial
		r.retryMax = max
	}
}

// WithRenewInterval sets how often a held lock's expiry is extended; the default is a
// third of the ttl. Zero disables renewal.
func WithRenewInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.renewEvery = max(d, 0)
	}
}

// WithTokenGenerator overrides how lock ownership tokens are produced.
func WithTokenGenerator(fn func() string) RedisOption {
	return func(r *Redis) { r.token = fn }
}

// WithLogger attaches a logger for release failures.
func WithLogger(logger *zap.Logger) RedisOption {
	return func(r *Redis) { r.logger = logger }
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client redis.Cmdable, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{
		client:         client,
		ttl:            ttl,
		acquireTimeout: defaultAcquireTimeout,
		retryInitial:   10 * time.Millisecond,
		retryMax:       250 * time.Millisecond,
		token:          uuid.NewString,
		logger:         zap.NewNop(),
		renewEvery:     -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ttl <= 0 {
		r.ttl = 10 * time.Second
	}
	if r.renewEvery < 0 {
		r.renewEvery = r.ttl / 3
	}
	return r
}

func (r *Redis) Acquire(ctx context.Context, key string) (Unlock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	token := r.token()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.retryInitial
	exp.MaxInterval = r.retryMax
	exp.MaxElapsedTime = 0
	exp.Reset()

	err := backoff.Retry(func() error {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return errContended
		}
		return nil
	}, backoff.WithContext(exp, ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
	}

	stop := r.keepAlive(redisKey, token)
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			r.release(redisKey, token)
		})
	}, nil
}

// keepAlive extends the lease every renewEvery until the returned stop is called or the
// key no longer carries token. The returned func waits for the renewer to exit.
func (r *Redis) keepAlive(redisKey, token string) func() {
	if r.renewEvery <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(r.renewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), r.renewEvery)
			n, err := r.client.Eval(ctx, renewScript, []string{redisKey}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				r.logger.Warn("failed to renew lock", zap.String("key", redisKey), zap.Error(err))
				continue
			}
			if n == 0 {
				r.logger.Warn("lock lease lost", zap.String("key", redisKey), zap.Duration("ttl", r.ttl))
				return
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

func (r *Redis) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	n, err := r.client.Eval(ctx, releaseScript, []string{redisKey}, token).Int64()
	if err != nil {
		r.logger.Warn("failed to release lock", zap.String("key", redisKey), zap.Error(err))
		return
	}
	if n == 0 {
		r.logger.Warn("lock expired before release", zap.String("key", redisKey))
	}
}
