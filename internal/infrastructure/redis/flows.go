// Package redisinfra stores authentication flows in Redis.
package redisinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/medconnect-auth/internal/config"
	"github.com/medconnect-auth/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	flowKeyPrefix    = "authflow:"
	maxUpdateRetries = 16
)

// NewClient connects to the Redis server in cfg and checks it responds.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// FlowRepo keeps each flow as a JSON string under authflow:<id>. Every write
// refreshes the TTL.
type FlowRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func NewFlowRepo(client *redis.Client, ttl time.Duration) *FlowRepo {
	return &FlowRepo{client: client, ttl: ttl}
}

func flowKey(flowID string) string { return flowKeyPrefix + flowID }

func (r *FlowRepo) Create(ctx context.Context, f *domain.Flow) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	ok, err := r.client.SetNX(ctx, flowKey(f.FlowID), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("flow %s: %w", f.FlowID, domain.ErrConflict)
	}
	return nil
}

func (r *FlowRepo) Get(ctx context.Context, flowID string) (*domain.Flow, error) {
	return decode(r.client.Get(ctx, flowKey(flowID)), flowID)
}

// Update applies fn under WATCH and retries when another writer got there
// first. fn may run more than once.
func (r *FlowRepo) Update(ctx context.Context, flowID string, fn func(f *domain.Flow) error) (*domain.Flow, error) {
	key := flowKey(flowID)
	for i := 0; i < maxUpdateRetries; i++ {
		var out *domain.Flow
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			f, err := decode(tx.Get(ctx, key), flowID)
			if err != nil {
				return err
			}
			if err := fn(f); err != nil {
				return err
			}
			data, err := json.Marshal(f)
			if err != nil {
				return fmt.Errorf("marshal flow: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, r.ttl)
				return nil
			})
			out = f
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update flow %s: too much contention: %w", flowID, domain.ErrConflict)
}

func decode(cmd *redis.StringCmd, flowID string) (*domain.Flow, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("flow %s: %w", flowID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var f domain.Flow
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &f, nil
}
