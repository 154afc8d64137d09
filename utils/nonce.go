package utils

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UploadNonceAction scopes nonces to the image upload endpoint.
const UploadNonceAction = "aiep_upload"

type nonceClaims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

// NonceSigner issues short-lived, stateless request tokens bound to an action.
type NonceSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewNonceSigner returns a signer whose tokens live for ttl.
func NewNonceSigner(secret string, ttl time.Duration) *NonceSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &NonceSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the signer clock. Used by tests.
func (s *NonceSigner) WithClock(now func() time.Time) *NonceSigner {
	s.now = now
	return s
}

// Issue returns a token for action.
func (s *NonceSigner) Issue(action string) (string, error) {
	now := s.now()
	claims := nonceClaims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Check reports whether token is a valid, unexpired nonce for action.
func (s *NonceSigner) Check(token, action string) bool {
	if token == "" {
		return false
	}
	parsed, err := jwt.ParseWithClaims(token, &nonceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(*nonceClaims)
	return ok && claims.Action == action
}

// VerifyNonce checks an upload nonce. It satisfies the upload package's verifier contract.
func (s *NonceSigner) VerifyNonce(_ context.Context, token string) bool {
	return s.Check(token, UploadNonceAction)
}
