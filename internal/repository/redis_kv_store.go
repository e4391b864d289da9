package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKVStore はRedisを使用したKeyValueStore実装。
// すべてのキーにprefixを付与して名前空間を分ける。
type RedisKVStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisKVStore はRedisKVStoreを生成する。
func NewRedisKVStore(client redis.UniversalClient, prefix string) *RedisKVStore {
	return &RedisKVStore{client: client, prefix: prefix}
}

// Get は指定キーの値を取得する。
func (s *RedisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get redis key %s: %w", key, err)
	}
	return v, true, nil
}

// Set は指定キーに値を書き込む。有効期限は設定しない（失効判定はセッションマネージャーが行う）。
func (s *RedisKVStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set redis key %s: %w", key, err)
	}
	return nil
}

// Delete は指定キーをまとめて削除する。
func (s *RedisKVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to delete redis keys: %w", err)
	}
	return nil
}

var _ KeyValueStore = (*RedisKVStore)(nil)
