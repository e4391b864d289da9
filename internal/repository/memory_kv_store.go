package repository

import (
	"context"
	"sync"
)

// MemoryKVStore はプロセス内メモリのKeyValueStore実装。
// プロセス終了で内容は失われる。
type MemoryKVStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKVStore はMemoryKVStoreを生成する。
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{values: make(map[string]string)}
}

// Get は指定キーの値を取得する。
func (s *MemoryKVStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set は指定キーに値を書き込む。
func (s *MemoryKVStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete は指定キーを削除する。
func (s *MemoryKVStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// Len は保持しているキー数を返す。テスト用。
func (s *MemoryKVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

var _ KeyValueStore = (*MemoryKVStore)(nil)
