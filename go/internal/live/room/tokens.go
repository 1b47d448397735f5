package room

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const hostTokenIssuer = "quizlive"

// hostClaims binds a token to one room and its host connection.
type hostClaims struct {
	PIN string `json:"pin"`
	jwt.RegisteredClaims
}

// HostTokens issues and verifies the capability token handed to a room's creator.
type HostTokens struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewHostTokens creates a token issuer. An empty secret is replaced with random bytes,
// which makes tokens valid for this process only.
func NewHostTokens(secret []byte, ttl time.Duration, clock clockwork.Clock) (*HostTokens, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate host token secret: %w", err)
		}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HostTokens{secret: secret, ttl: ttl, clock: clock}, nil
}

// Issue signs a token for the host connection of pin.
func (t *HostTokens) Issue(pin, connectionID string) (string, error) {
	now := t.clock.Now()
	claims := hostClaims{
		PIN: pin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    hostTokenIssuer,
			Subject:   connectionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign host token: %w", err)
	}
	return signed, nil
}

// Verify checks that token was issued for pin and connectionID and has not expired.
func (t *HostTokens) Verify(token, pin, connectionID string) error {
	if token == "" {
		return fmt.Errorf("%w: missing", ErrInvalidHostToken)
	}

	var claims hostClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(hostTokenIssuer),
		jwt.WithSubject(connectionID),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHostToken, err)
	}
	if claims.PIN != pin {
		return fmt.Errorf("%w: issued for another room", ErrInvalidHostToken)
	}
	return nil
}
