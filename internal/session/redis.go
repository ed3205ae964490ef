package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session in a Redis hash that expires ttl after it
// was last read or written.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// ConnectRedis opens a client and verifies the server answers.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	log.Println("Redis connection successfully opened.")
	return rdb, nil
}

func redisKey(sid string) string { return "session:" + sid }

func (s *RedisStore) Get(ctx context.Context, sid, key string) ([]byte, bool, error) {
	var get *redis.StringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, redisKey(sid), key)
		pipe.Expire(ctx, redisKey(sid), s.ttl)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("session get %s: %w", key, err)
	}
	v, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, sid, key string, value []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisKey(sid), key, value)
		pipe.Expire(ctx, redisKey(sid), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Pop(ctx context.Context, sid, key string) ([]byte, bool, error) {
	var get *redis.StringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, redisKey(sid), key)
		pipe.HDel(ctx, redisKey(sid), key)
		pipe.Expire(ctx, redisKey(sid), s.ttl)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("session pop %s: %w", key, err)
	}
	v, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session pop %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Destroy(ctx context.Context, sid string) error {
	if err := s.rdb.Del(ctx, redisKey(sid)).Err(); err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}
	return nil
}
