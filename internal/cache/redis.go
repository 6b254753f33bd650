// Package cache оборачивает Redis: JSON-кэш, одноразовые флаги,
// короткие блокировки на пользователя и pub/sub для телеметрии.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/goflexconnect/internal/config"
)

// ErrLockNotAcquired блокировка занята другим запросом и не освободилась за отведённое время.
var ErrLockNotAcquired = errors.New("lock not acquired")

// unlockScript удаляет ключ, только если он всё ещё принадлежит владельцу токена.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Cache клиент Redis.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// Close закрывает клиент.
func (c *Cache) Close() error {
	return c.Db.Close()
}

// Get читает значение и раскладывает JSON в result. false, если ключа нет.
func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set сохраняет значение в JSON с временем жизни.
func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Db.Set(ctx, key, jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Invalidate удаляет ключ.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	const op = "cache.Invalidate"
	if err := c.Db.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetNX ставит флаг, если его ещё нет. true означает, что флаг поставлен этим вызовом.
func (c *Cache) SetNX(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	const op = "cache.SetNX"
	ok, err := c.Db.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), expiration).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// Lock захватывает блокировку key на ttl, повторяя попытки до отмены ctx.
// Возвращает функцию освобождения.
func (c *Cache) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	const op = "cache.Lock"
	token := uuid.NewString()
	retry := time.NewTicker(25 * time.Millisecond)
	defer retry.Stop()

	for {
		ok, err := c.Db.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := unlockScript.Run(ctx, c.Db, []string{key}, token).Err(); err != nil {
					return fmt.Errorf("cache.Unlock: %w", err)
				}
				return nil
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w: %w", op, ErrLockNotAcquired, ctx.Err())
		case <-retry.C:
		}
	}
}

// Publish отправляет сообщение в канал pub/sub в JSON.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	const op = "cache.Publish"
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.Db.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Subscribe подписывается на канал. Вызывающий закрывает подписку.
func (c *Cache) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return c.Db.Subscribe(ctx, channel)
}
