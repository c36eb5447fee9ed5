package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	positionKeyPrefix = "courier:position:"
	positionTTL       = 30 * time.Minute
)

// RedisCache shares the position cache across processes. Samples expire
// so a silent courier eventually falls back to the durable last-known
// position.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCache) Get(ctx context.Context, courierID uint) (Position, bool, error) {
	val, err := c.client.Get(ctx, positionKey(courierID)).Result()
	if errors.Is(err, redis.Nil) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("redis get: %w", err)
	}
	var p Position
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return Position{}, false, fmt.Errorf("decode position: %w", err)
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, courierID uint, p Position) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	if err := c.client.Set(ctx, positionKey(courierID), body, positionTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, courierID uint) error {
	if err := c.client.Del(ctx, positionKey(courierID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *RedisCache) All(ctx context.Context) (map[uint]Position, error) {
	out := make(map[uint]Position)
	iter := c.client.Scan(ctx, 0, positionKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id, err := strconv.ParseUint(strings.TrimPrefix(key, positionKeyPrefix), 10, 64)
		if err != nil {
			continue
		}
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var p Position
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			continue
		}
		out[uint(id)] = p
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

func positionKey(courierID uint) string {
	return positionKeyPrefix + strconv.FormatUint(uint64(courierID), 10)
}
