package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/brandshield/internal/model"
)

// ErrInvalidToken はトークンの署名・期限・形式が不正な場合のエラー。
var ErrInvalidToken = errors.New("invalid token")

// Claims はセッショントークンに含めるクレーム。
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	Name  string     `json:"name"`
	jwt.RegisteredClaims
}

// TokenManager はIdentityに対する署名付きJWTを発行・検証する。
// トークンは所持証明に過ぎず、有効なセッションの判定はセッションマネージャーが行う。
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager はsecret、issuer、有効期間を指定してTokenManagerを生成する。
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate はIdentityとセッションIDに対する署名付きJWT文字列を発行する。
// セッションIDはjtiクレームに入り、トークンを発行元のログインに束縛する。
func (t *TokenManager) Generate(identity model.Identity, sessionID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	now := t.now()
	claims := Claims{
		Email: identity.Email,
		Role:  identity.Role,
		Name:  identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   identity.ID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証してクレームを返す。
// HS256以外のアルゴリズム、issuer不一致、期限切れ、subjectまたはjtiの欠落はErrInvalidTokenとなる。
func (t *TokenManager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidToken)
	}
	return claims, nil
}
