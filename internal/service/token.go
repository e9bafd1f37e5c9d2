package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"posevault/internal/domain"
)

// TokenService signs and validates short-lived archive download tokens.
// Each token is HMAC-signed and bound to a single archive name.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. An empty secret generates a random
// per-process one; previously issued tokens then die with the process, which
// is fine for the short-lived links this signs.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		secret = hex.EncodeToString(b)
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// IssueArchiveToken returns a signed token granting download access to the
// named archive until the TTL expires.
func (s *TokenService) IssueArchiveToken(archiveName string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": archiveName,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}
	return signed, nil
}

// ValidateArchiveToken checks signature and expiry and that the token was
// issued for the named archive.
func (s *TokenService) ValidateArchiveToken(tokenString, archiveName string) error {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.ErrUnauthorized
	}
	sub, err := claims.GetSubject()
	if err != nil || sub != archiveName {
		return domain.ErrUnauthorized
	}
	return nil
}
