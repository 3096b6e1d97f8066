package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// commandTimeout bounds every single-command round trip. Blocking pop
// operations carry their own explicit timeout and are exempt.
const commandTimeout = 5 * time.Second

// redisClient implements Client over a go-redis universal client, usable
// against either a standalone instance or a cluster without callers caring
// which.
type redisClient struct {
	rdb redis.UniversalClient
}

// NewRedisClient builds a Client from a connection URL, e.g.
// "redis://host:6379/0".
func NewRedisClient(addr string) (Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, err
	}
	return &redisClient{rdb: redis.NewClient(opts)}, nil
}

// NewFromUniversalClient wraps an already-constructed client, used by tests
// to point at a miniredis instance.
func NewFromUniversalClient(rdb redis.UniversalClient) Client {
	return &redisClient{rdb: rdb}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, commandTimeout)
}

func (c *redisClient) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	v, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return v, err
}

func (c *redisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := c.rdb.Set(ctx, key, value, ttl).Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (c *redisClient) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if errors.Is(err, context.DeadlineExceeded) {
		return false, ErrTimeout
	}
	return ok, err
}

func (c *redisClient) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	n, err := c.rdb.Exists(ctx, key).Result()
	if errors.Is(err, context.DeadlineExceeded) {
		return false, ErrTimeout
	}
	return n > 0, err
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := c.rdb.Del(ctx, key).Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (c *redisClient) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	n, err := c.rdb.Incr(ctx, key).Result()
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, ErrTimeout
	}
	return n, err
}

func (c *redisClient) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	n, err := c.rdb.HIncrBy(ctx, key, field, delta).Result()
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, ErrTimeout
	}
	return n, err
}

func (c *redisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return m, err
}

func (c *redisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := c.rdb.Expire(ctx, key, ttl).Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (c *redisClient) RPush(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := c.rdb.RPush(ctx, key, value).Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (c *redisClient) LPush(ctx context.Context, key string, value []byte) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := c.rdb.LPush(ctx, key, value).Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (c *redisClient) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// BLPop blocks up to timeout across keys. A redis.Nil result (timeout
// elapsed with nothing popped) is translated to (nil, nil), not an error:
// callers must not confuse "nothing queued" with a store failure.
func (c *redisClient) BLPop(ctx context.Context, timeout time.Duration, keys ...string) (*PoppedItem, error) {
	res, err := c.rdb.BLPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, nil
	}
	return &PoppedItem{Key: res[0], Value: []byte(res[1])}, nil
}

func (c *redisClient) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		var (
			batch []string
			err   error
		)
		batch, cursor, err = c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, err
		}
		keys = append(keys, batch...)
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (c *redisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	err := c.rdb.Publish(ctx, channel, payload).Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (c *redisClient) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := c.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan Message, 64)
	sub := &redisSubscription{ps: ps, out: out}
	go sub.pump()
	return sub, nil
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan Message
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	ch := s.ps.Channel()
	for msg := range ch {
		s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Channel() <-chan Message { return s.out }

func (s *redisSubscription) Close() error { return s.ps.Close() }
