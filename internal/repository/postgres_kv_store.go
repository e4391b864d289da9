package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresKVStore はPostgreSQLのlocal_storageテーブルを使用したKeyValueStore実装。
// テーブル定義はdatabase/migrationsで管理する。
type PostgresKVStore struct {
	db *sql.DB
}

// NewPostgresKVStore はPostgresKVStoreを生成する。
func NewPostgresKVStore(db *sql.DB) *PostgresKVStore {
	return &PostgresKVStore{db: db}
}

// Get は指定キーの値を取得する。
func (s *PostgresKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM local_storage WHERE key = $1`,
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get local_storage key %s: %w", key, err)
	}
	return value, true, nil
}

// Set は指定キーに値をUPSERTする。
func (s *PostgresKVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_storage (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set local_storage key %s: %w", key, err)
	}
	return nil
}

// Delete は指定キーをまとめて削除する。
func (s *PostgresKVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM local_storage WHERE key = ANY($1)`,
		pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("failed to delete local_storage keys: %w", err)
	}
	return nil
}

// compile-time interface check
var _ KeyValueStore = (*PostgresKVStore)(nil)
