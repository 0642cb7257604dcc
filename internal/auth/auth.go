package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "fundimart"

// Claims represents JWT claims used across the service.
type Claims struct {
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 access tokens.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens builds a token codec. The secret must be non-empty.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth secret is not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be greater than zero")
	}
	return &Tokens{secret: []byte(secret), issuer: defaultIssuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for userID and returns its claims.
func (t *Tokens) Issue(userID string) (string, *Claims, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil, errors.New("userID is required")
	}
	now := t.now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies the token signature and required claims.
func (t *Tokens) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
