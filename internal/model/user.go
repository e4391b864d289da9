// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role は認証済みユーザーの権限区分を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。管理系ビュー（users, settings）へアクセスできる。
	RoleAdmin Role = "admin"
)

// Valid はRoleが既知の値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity は認証済みのプリンシパルを表す。
// JSONフィールド名は永続化レイアウト（session.identity）と一致させる。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Name  string `json:"name"`
}

// IsAdmin は管理者ロールかどうかを返す。
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// Validate は永続化レコードから復元したIdentityが利用可能な形かを検証する。
func (i *Identity) Validate() error {
	if i == nil {
		return ErrCorruptRecord
	}
	if strings.TrimSpace(i.ID) == "" || strings.TrimSpace(i.Email) == "" || !i.Role.Valid() {
		return ErrCorruptRecord
	}
	return nil
}

// SessionRecord は「誰がいつからログインしているか」の永続表現。
// Identityはログイン時点のスナップショットであり、再取得はしない。
// SessionIDはログインごとに発行され、ベアラートークンをそのログインに束縛する。
type SessionRecord struct {
	Identity     Identity
	LastActivity time.Time
	SessionID    string
}

// IsValid はnow時点でアイドルタイムアウト内かどうかを返す。
// 経過時間がちょうどidleTimeoutの場合は期限切れとして扱う。
func (r *SessionRecord) IsValid(now time.Time, idleTimeout time.Duration) bool {
	if r == nil {
		return false
	}
	return now.Sub(r.LastActivity) < idleTimeout
}
