package password

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// legacyDigestLen is the length of a hex SHA-1 digest.
const legacyDigestLen = 40

// legacyStored is hex(sha1(password + salt)), used when the salt lives next to the digest.
func legacyStored(password, salt string) string {
	sum := sha1.Sum([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// legacyEmbedded prefixes a fresh salt to a truncated hex(sha1(salt + password)) so the
// result stays 40 characters.
func legacyEmbedded(password string, saltLength int) (string, error) {
	salt, err := Salt(saltLength)
	if err != nil {
		return "", err
	}
	return legacyEmbeddedWith(password, salt), nil
}

func legacyEmbeddedWith(password, salt string) string {
	sum := sha1.Sum([]byte(salt + password))
	return salt + hex.EncodeToString(sum[:])[:legacyDigestLen-len(salt)]
}

func legacyVerify(password, hash, salt string, saltLength int) (bool, error) {
	if len(hash) != legacyDigestLen {
		return false, fmt.Errorf("%w: legacy digest must be %d characters", ErrMalformedDigest, legacyDigestLen)
	}

	var computed string
	if salt != "" {
		computed = legacyStored(password, salt)
	} else {
		computed = legacyEmbeddedWith(password, hash[:saltLength])
	}

	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}
