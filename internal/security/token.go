package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"go-identity-service/internal/model"
)

// SessionClaims is the payload of a session token. The identity id travels
// in the "id" claim. iat is whole seconds, so the issue time is repeated in
// milliseconds under "iat_ms" for revocation checks.
type SessionClaims struct {
	IdentityID string `json:"id"`
	IssuedAtMs int64  `json:"iat_ms"`
	jwt.RegisteredClaims
}

// VerifiedToken is what a caller may trust after Verify succeeds.
type VerifiedToken struct {
	IdentityID string
	TokenID    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// TokenIssuer signs and verifies HS256 session tokens with a process-wide
// secret and a fixed lifetime.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  abtime.AbstractTime
}

func NewTokenIssuer(secret string, ttl time.Duration, clock abtime.AbstractTime) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}

	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

func (t *TokenIssuer) Issue(identityID string) (string, error) {
	if identityID == "" {
		return "", errors.New("identity id is required")
	}

	now := t.clock.Now()
	claims := SessionClaims{
		IdentityID: identityID,
		IssuedAtMs: now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signed, nil
}

// Verify checks algorithm, signature, expiry and issue time in one pass.
// Expired tokens yield model.ErrTokenExpired; every other failure yields
// model.ErrTokenInvalid.
func (t *TokenIssuer) Verify(raw string) (VerifiedToken, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifiedToken{}, fmt.Errorf("%w: %v", model.ErrTokenExpired, err)
		}
		return VerifiedToken{}, fmt.Errorf("%w: %v", model.ErrTokenInvalid, err)
	}

	if claims.IdentityID == "" || claims.IssuedAt == nil || claims.IssuedAtMs <= 0 {
		return VerifiedToken{}, fmt.Errorf("%w: missing id or iat claim", model.ErrTokenInvalid)
	}
	if claims.IssuedAtMs/1000 != claims.IssuedAt.Unix() {
		return VerifiedToken{}, fmt.Errorf("%w: iat and iat_ms disagree", model.ErrTokenInvalid)
	}

	return VerifiedToken{
		IdentityID: claims.IdentityID,
		TokenID:    claims.ID,
		IssuedAt:   time.UnixMilli(claims.IssuedAtMs).UTC(),
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
