package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidHandle is returned for handles that fail signature or claim checks.
var ErrInvalidHandle = errors.New("invalid session handle")

// HandleClaims is the payload of a session handle. It names the session; it grants
// nothing without the Redis record.
type HandleClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// HandleSigner signs and parses HS256 session handles.
type HandleSigner struct {
	key    []byte
	issuer string
	leeway time.Duration
}

// NewHandleSigner requires a key of at least 32 bytes.
func NewHandleSigner(key []byte, issuer string) (*HandleSigner, error) {
	if len(key) < 32 {
		return nil, errors.New("session signing key must be at least 32 bytes")
	}
	return &HandleSigner{key: key, issuer: issuer, leeway: 5 * time.Second}, nil
}

// Sign returns a compact JWS for sess.
func (h *HandleSigner) Sign(sess *Session) (string, error) {
	claims := HandleClaims{
		SID: sess.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			Issuer:    h.issuer,
			IssuedAt:  jwt.NewNumericDate(time.Unix(sess.CreatedAt, 0)),
			ExpiresAt: jwt.NewNumericDate(time.Unix(sess.ExpiresAt, 0)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.key)
}

// Parse verifies handle and returns its claims. With allowExpired the expiry check is
// skipped so that an expired session can still be destroyed.
func (h *HandleSigner) Parse(handle string, allowExpired bool) (*HandleClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(h.leeway),
	}
	if h.issuer != "" {
		options = append(options, jwt.WithIssuer(h.issuer))
	}
	if allowExpired {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(handle, &HandleClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return h.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}

	claims, ok := token.Claims.(*HandleClaims)
	if !ok || !token.Valid || claims.SID == "" {
		return nil, ErrInvalidHandle
	}
	if allowExpired && h.issuer != "" && claims.Issuer != h.issuer {
		return nil, ErrInvalidHandle
	}
	return claims, nil
}
