package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/models"

	"github.com/redis/go-redis/v9"
)

const dayStatusKeyPrefix = "day_status:"

type RedisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStatusCache(client *redis.Client, ttl time.Duration) *RedisStatusCache {
	return &RedisStatusCache{
		client: client,
		ttl:    ttl,
	}
}

func dayStatusKey(date time.Time) string {
	return dayStatusKeyPrefix + models.FormatDate(date)
}

// Get returns nil without error on a cache miss.
func (r *RedisStatusCache) Get(ctx context.Context, date time.Time) (*models.DayStatus, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, dayStatusKey(date)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get day status from redis: %w", err)
	}

	var status models.DayStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal day status: %w", err)
	}

	return &status, nil
}

func (r *RedisStatusCache) Set(ctx context.Context, status *models.DayStatus) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal day status: %w", err)
	}

	if err := r.client.Set(ctx, dayStatusKey(status.Date), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set day status in redis: %w", err)
	}

	return nil
}

func (r *RedisStatusCache) Invalidate(ctx context.Context, dates ...time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(dates) == 0 {
		return nil
	}
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, dayStatusKey(d))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete day status from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
