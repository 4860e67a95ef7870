package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "din:kv:"

// RedisKV keeps the KV layer in redis, expiry is left to redis itself.
type RedisKV struct {
	client *redis.Client
	prefix string
}

func NewRedisKV(addr, password string, db int) *RedisKV {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisKVFromClient(client, DefaultRedisPrefix)
}

func NewRedisKVFromClient(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (kv *RedisKV) Ping(ctx context.Context) error {
	return kv.client.Ping(ctx).Err()
}

func (kv *RedisKV) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := kv.client.Get(ctx, kv.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("could not decode value of %s: %v", key, err)
	}
	return true, nil
}

func (kv *RedisKV) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not encode value of %s: %v", key, err)
	}
	return kv.client.Set(ctx, kv.prefix+key, data, ttl).Err()
}

func (kv *RedisKV) Del(ctx context.Context, key string) error {
	return kv.client.Del(ctx, kv.prefix+key).Err()
}

func (kv *RedisKV) Close() error {
	return kv.client.Close()
}
