// Package auth は資格情報の検証とベアラートークンの発行を提供する。
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/brandshield/internal/model"
)

// CredentialVerifier は(email, password)の組を検証するインターフェース。
// 将来的に外部IdPへ差し替えるための境界。
type CredentialVerifier interface {
	// Verify は資格情報に一致するIdentityを返す。
	// 一致しない場合はmodel.ErrInvalidCredentialsを返す。
	Verify(ctx context.Context, email, password string) (*model.Identity, error)
}

// Credential は固定資格情報テーブルの1エントリ。
type Credential struct {
	Identity model.Identity
	Password string
}

// DefaultCredentials は既知の2組の資格情報（管理者・一般ユーザー）を返す。
func DefaultCredentials() []Credential {
	return []Credential{
		{
			Identity: model.Identity{
				ID:    "1",
				Email: "admin@brandprotect.com",
				Role:  model.RoleAdmin,
				Name:  "Admin User",
			},
			Password: "admin123",
		},
		{
			Identity: model.Identity{
				ID:    "2",
				Email: "user@brandprotect.com",
				Role:  model.RoleUser,
				Name:  "Regular User",
			},
			Password: "user123",
		},
	}
}

type hashedCredential struct {
	identity model.Identity
	hash     []byte
}

// StaticCredentials は閉じた固定集合の資格情報テーブル。
// 平文パスワードは保持せず、構築時にbcryptハッシュへ変換する。
type StaticCredentials struct {
	entries   []hashedCredential
	dummyHash []byte
}

// NewStaticCredentials はStaticCredentialsを生成する。
// costにはbcryptのコストを指定する（0以下の場合はbcrypt.DefaultCost）。
func NewStaticCredentials(creds []Credential, cost int) (*StaticCredentials, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	s := &StaticCredentials{entries: make([]hashedCredential, 0, len(creds))}
	for _, c := range creds {
		hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", c.Identity.Email, err)
		}
		s.entries = append(s.entries, hashedCredential{identity: c.Identity, hash: hash})
	}

	// 未知のメールアドレスでも同じ計算量をかけ、応答時間から存在を推測させない
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash dummy password: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Verify は資格情報を検証する。メールアドレスの照合は完全一致。
func (s *StaticCredentials) Verify(_ context.Context, email, password string) (*model.Identity, error) {
	var matched *hashedCredential
	for i := range s.entries {
		if subtle.ConstantTimeCompare([]byte(s.entries[i].identity.Email), []byte(email)) == 1 {
			matched = &s.entries[i]
			break
		}
	}

	if matched == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(matched.hash, []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	identity := matched.identity
	return &identity, nil
}

var _ CredentialVerifier = (*StaticCredentials)(nil)
