// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/brandshield/internal/model"
)

// 永続化レイアウトのキー。ブラウザのローカルストレージと同じ論理キーを使う。
const (
	// KeyIdentity はIdentityのJSONを保持するキー。
	KeyIdentity = "session.identity"
	// KeyLastActivity は最終アクティビティ時刻（エポックミリ秒の10進文字列）を保持するキー。
	KeyLastActivity = "session.lastActivity"
	// KeySessionID はログインごとのセッションIDを保持するキー。
	// 欠けていてもレコードは有効で、復元時に新しいIDを発行する。
	KeySessionID = "session.id"
)

// SessionKeys はセッションレコードを構成する全キー。
var SessionKeys = []string{KeyIdentity, KeyLastActivity, KeySessionID}

// KeyValueStore は文字列キー・文字列値の永続化インターフェース。
// メモリ、PostgreSQL、Redisの各実装を持つ。
type KeyValueStore interface {
	// Get は指定キーの値を取得する。存在しない場合はfoundがfalseになる。
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set は指定キーに値を書き込む。既存の値は上書きする（last writer wins）。
	Set(ctx context.Context, key, value string) error
	// Delete は指定キーを削除する。存在しないキーの削除はエラーにならない。
	Delete(ctx context.Context, keys ...string) error
}

// SessionRecordStore はセッションレコードの永続化インターフェース。
type SessionRecordStore interface {
	// Load は永続化されたレコードを取得する。レコードが無い場合はnilを返す。
	// 復元できないレコードの場合はmodel.ErrCorruptRecordをラップして返す。
	Load(ctx context.Context) (*model.SessionRecord, error)

	// Save はレコードを書き込む。
	Save(ctx context.Context, record *model.SessionRecord) error

	// TouchLastActivity は最終アクティビティ時刻だけを更新する。
	TouchLastActivity(ctx context.Context, at time.Time) error

	// LastActivity は最終アクティビティ時刻を取得する。
	// 未設定の場合はfoundがfalseになる。
	LastActivity(ctx context.Context) (at time.Time, found bool, err error)

	// Clear はレコードを削除する。レコードが無くてもエラーにならない。
	Clear(ctx context.Context) error
}
