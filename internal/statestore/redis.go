package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "oauth:state:"

// Redis implements Store on a Redis instance; this is the production store
// so the handshake survives a process restart mid-flow and works across
// replicas behind one load balancer.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection before returning.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("statestore: redis ping failed: %w", err)
	}

	return &Redis{client: client}, nil
}

func (r *Redis) Put(ctx context.Context, state, destination string) error {
	if err := r.client.Set(ctx, keyPrefix+state, destination, TTL).Err(); err != nil {
		return fmt.Errorf("statestore: storing state: %w", err)
	}
	return nil
}

// Consume reads and deletes in a single GETDEL, so exactly one caller can
// ever see a given state.
func (r *Redis) Consume(ctx context.Context, state string) (string, error) {
	dest, err := r.client.GetDel(ctx, keyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("statestore: consuming state: %w", err)
	}
	return dest, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
