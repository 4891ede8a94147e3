package user

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer 负责v2接口的JWT签发与校验
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer 创建一个issuer，ttlDays为令牌有效期（天）
func NewTokenIssuer(secret string, ttlDays int) *TokenIssuer {
	if ttlDays <= 0 {
		ttlDays = 30
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    time.Duration(ttlDays) * 24 * time.Hour,
	}
}

type claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Issue 为一个用户签发新令牌
func (t *TokenIssuer) Issue(userID int64, now time.Time) (string, error) {
	c := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("无法签发令牌: %w", err)
	}
	return signed, nil
}

var ErrInvalidToken = errors.New("invalid token")

// Verify 校验令牌并返回其中的用户ID
func (t *TokenIssuer) Verify(tokenString string) (int64, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	if c.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return c.UserID, nil
}
