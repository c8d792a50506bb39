package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cooldown grants alert slots. Acquire returns the subset of ids that may
// alert at now and records the grant atomically, so concurrent callers never
// both win the same monitor.
type Cooldown interface {
	Acquire(ctx context.Context, ids []string, now time.Time) ([]string, error)
}

// SlotStore is the storage side of StoreCooldown.
type SlotStore interface {
	AcquireAlertSlots(ctx context.Context, ids []string, now time.Time, cooldown time.Duration) ([]string, error)
	TouchLastAlerted(ctx context.Context, ids []string, at time.Time) error
}

// StoreCooldown keeps cooldown state on the monitor row and acquires slots
// with a conditional update.
type StoreCooldown struct {
	store  SlotStore
	window time.Duration
}

func NewStoreCooldown(store SlotStore, window time.Duration) *StoreCooldown {
	return &StoreCooldown{store: store, window: window}
}

func (c *StoreCooldown) Acquire(ctx context.Context, ids []string, now time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return c.store.AcquireAlertSlots(ctx, ids, now, c.window)
}

// RedisCooldown acquires slots with SET NX and an expiry of the cooldown
// window. Granted monitors also get last_alerted_at stamped in the store.
type RedisCooldown struct {
	client *redis.Client
	store  SlotStore
	window time.Duration
	prefix string
}

// NewRedisCooldown connects to the Redis instance at rawURL.
func NewRedisCooldown(ctx context.Context, rawURL string, store SlotStore, window time.Duration) (*RedisCooldown, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedisCooldown(client, store, window), nil
}

func newRedisCooldown(client *redis.Client, store SlotStore, window time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, store: store, window: window, prefix: "pulsewatch:cooldown:"}
}

func (c *RedisCooldown) Acquire(ctx context.Context, ids []string, now time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := c.client.Pipeline()
	cmds := make([]*redis.BoolCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.SetNX(ctx, c.prefix+id, now.UTC().Format(time.RFC3339Nano), c.window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("acquire cooldown slots: %w", err)
	}

	granted := make([]string, 0, len(ids))
	for i, cmd := range cmds {
		if cmd.Val() {
			granted = append(granted, ids[i])
		}
	}
	if len(granted) > 0 {
		if err := c.store.TouchLastAlerted(ctx, granted, now); err != nil {
			return granted, fmt.Errorf("stamp last alerted: %w", err)
		}
	}
	return granted, nil
}

// Close closes the Redis client.
func (c *RedisCooldown) Close() error {
	return c.client.Close()
}
