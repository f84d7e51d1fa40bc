package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus shares change notifications between processes over Redis
// Pub/Sub. Messages received from Redis, including the ones this process
// published, are dispatched to local subscribers.
type RedisBus struct {
	local   *LocalBus
	rdb     *goredis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisBus connects to addr and verifies the connection.
func NewRedisBus(ctx context.Context, addr, channel string, log zerolog.Logger) (*RedisBus, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis bus: missing address")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "docstore"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBus{
		local:   NewLocalBus(),
		rdb:     rdb,
		channel: channel,
		log:     log.With().Str("component", "redis_bus").Logger(),
	}, nil
}

// Publish sends c to every process. If Redis is unreachable the change is
// still delivered to local subscribers so this process stays consistent.
func (b *RedisBus) Publish(ctx context.Context, c Change) error {
	raw, err := encodeChange(c)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		_ = b.local.Publish(ctx, c)
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe registers a local subscriber.
func (b *RedisBus) Subscribe(fn func(Change)) func() { return b.local.Subscribe(fn) }

// StartForwarder subscribes to the Redis channel and dispatches incoming
// changes locally until ctx is done.
func (b *RedisBus) StartForwarder(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				c, err := decodeChange(m.Payload)
				if err != nil {
					b.log.Warn().Err(err).Msg("bad change payload")
					continue
				}
				_ = b.local.Publish(ctx, c)
			}
		}
	}()
	return nil
}

// Close closes the Redis client and drops local subscribers.
func (b *RedisBus) Close() error {
	_ = b.local.Close()
	return b.rdb.Close()
}

func encodeChange(c Change) ([]byte, error) { return json.Marshal(c) }

func decodeChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, err
	}
	if c.Collection == "" {
		return Change{}, fmt.Errorf("change without collection")
	}
	return c, nil
}
