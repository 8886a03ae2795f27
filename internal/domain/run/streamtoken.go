package run

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StreamTokenTTL bounds how long a minted stream token stays valid.
const StreamTokenTTL = 15 * time.Minute

// StreamTokenIssuer mints and verifies the short-lived tokens that
// authorize SSE access to a single run's event stream.
type StreamTokenIssuer struct {
	secret []byte
}

func NewStreamTokenIssuer(secret string) *StreamTokenIssuer {
	return &StreamTokenIssuer{secret: []byte(secret)}
}

// Mint creates a token scoped to runID.
func (i *StreamTokenIssuer) Mint(runID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   runID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(StreamTokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks the token signature, expiry and run scope.
func (i *StreamTokenIssuer) Verify(token, runID string) error {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid stream token: %w", err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject != runID {
		return fmt.Errorf("stream token not valid for this run")
	}
	return nil
}
