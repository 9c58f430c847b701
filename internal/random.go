package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"
	mrand "math/rand/v2"
	"strings"
	"time"
)

const (
	tokenSeedSize    = 32
	tokenMixRounds   = 1024
	activationBytes  = 20
	passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewToken returns a 43 character base64url token bound to owner. A crypto/rand seed is
// mixed through repeated SHA-256 rounds with a pseudo-random word and the wall clock,
// then finished with the owner so two owners never share an output stream.
func NewToken(owner string) (string, error) {
	state := make([]byte, tokenSeedSize)
	if _, err := rand.Read(state); err != nil {
		return "", err
	}

	var word [16]byte
	for i := 0; i < tokenMixRounds; i++ {
		binary.BigEndian.PutUint64(word[:8], mrand.Uint64())
		binary.BigEndian.PutUint64(word[8:], uint64(time.Now().UnixNano()))
		h := sha256.New()
		h.Write(state)
		h.Write(word[:])
		state = h.Sum(state[:0])
	}

	final := sha256.Sum256(append(state, owner...))
	return base64.RawURLEncoding.EncodeToString(final[:]), nil
}

// HashToken is the storage key derived from a token. Raw tokens are never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewActivationCode returns 40 random hex characters.
func NewActivationCode() (string, error) {
	var buf [activationBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// NewPassword returns a random password of length n drawn from an alphabet without
// look-alike characters.
func NewPassword(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid password length")
	}

	var b strings.Builder
	b.Grow(n)

	limit := big.NewInt(int64(len(passwordAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[idx.Int64()])
	}

	return b.String(), nil
}
