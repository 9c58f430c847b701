package password

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme names a digest algorithm.
type Scheme string

const (
	SchemeBcrypt   Scheme = "bcrypt"
	SchemeLegacy   Scheme = "legacy"
	SchemeArgon2id Scheme = "argon2id"
)

// BcryptMaxBytes is the longest password bcrypt accepts.
const BcryptMaxBytes = 72

var (
	// ErrMalformedDigest is returned by Verify when the stored digest cannot be parsed.
	ErrMalformedDigest = errors.New("password: malformed digest")
	// ErrUnknownScheme is returned for a scheme this package does not implement.
	ErrUnknownScheme = errors.New("password: unknown scheme")
)

// Digest is a stored password hash together with the parameters that produced it.
// Salt is only set for the legacy scheme when the salt is stored separately.
type Digest struct {
	Hash   string
	Scheme Scheme
	Cost   int
	Salt   string
}

// Config selects the scheme used for new digests and bounds its cost.
// For bcrypt the cost is the bcrypt work factor, for argon2id it is the time parameter,
// and the legacy scheme ignores it.
type Config struct {
	Scheme      Scheme
	DefaultCost int
	MinCost     int
	MaxCost     int
	RandomCost  bool
	StoreSalt   bool
	SaltLength  int
	Argon2      Argon2Config
}

// DefaultConfig returns bcrypt at cost 10 bounded to [8, 12].
func DefaultConfig() Config {
	return Config{
		Scheme:      SchemeBcrypt,
		DefaultCost: 10,
		MinCost:     8,
		MaxCost:     12,
		SaltLength:  10,
		Argon2:      DefaultArgon2Config(),
	}
}

// DefaultArgon2Config returns 64 MiB, two lanes, 16 byte salt and 32 byte key.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher computes and verifies digests. It is safe for concurrent use.
type Hasher struct {
	cfg   Config
	argon *Argon2
	dummy Digest
}

// New validates cfg and precomputes the digest used by Dummy.
func New(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	argonCfg := cfg.Argon2
	if argonCfg == (Argon2Config{}) {
		argonCfg = DefaultArgon2Config()
	}
	argon, err := NewArgon2(argonCfg)
	if err != nil {
		return nil, err
	}

	h := &Hasher{cfg: cfg, argon: argon}

	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	dummy, err := h.HashWith(hex.EncodeToString(seed[:]), cfg.Scheme, cfg.DefaultCost, "")
	if err != nil {
		return nil, fmt.Errorf("password: dummy digest: %w", err)
	}
	h.dummy = dummy

	return h, nil
}

func (c Config) validate() error {
	switch c.Scheme {
	case SchemeBcrypt:
		if c.MinCost < bcrypt.MinCost || c.MaxCost > bcrypt.MaxCost {
			return fmt.Errorf("password: bcrypt cost bounds must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost)
		}
	case SchemeArgon2id:
		if c.MinCost < 1 {
			return errors.New("password: argon2id min cost must be >= 1")
		}
	case SchemeLegacy:
	default:
		return ErrUnknownScheme
	}

	if c.Scheme != SchemeLegacy {
		if c.MinCost > c.MaxCost {
			return errors.New("password: min cost must be <= max cost")
		}
		if c.DefaultCost < c.MinCost || c.DefaultCost > c.MaxCost {
			return errors.New("password: default cost must be within [min cost, max cost]")
		}
	}
	if c.SaltLength < 1 || c.SaltLength >= legacyDigestLen {
		return fmt.Errorf("password: salt length must be within [1, %d]", legacyDigestLen-1)
	}

	return nil
}

// Hash digests password with the configured scheme. In random cost mode each call
// picks a cost uniformly from [MinCost, MaxCost].
func (h *Hasher) Hash(password string) (Digest, error) {
	cost := h.cfg.DefaultCost
	if h.cfg.RandomCost && h.cfg.MaxCost > h.cfg.MinCost {
		cost = h.cfg.MinCost + mrand.IntN(h.cfg.MaxCost-h.cfg.MinCost+1)
	}

	salt := ""
	if h.cfg.Scheme == SchemeLegacy && h.cfg.StoreSalt {
		var err error
		if salt, err = Salt(h.cfg.SaltLength); err != nil {
			return Digest{}, err
		}
	}

	return h.HashWith(password, h.cfg.Scheme, cost, salt)
}

// HashWith digests password with an explicit scheme and cost. For the legacy scheme a
// non-empty salt selects the stored-salt form, which keeps an existing salt across a
// password change.
func (h *Hasher) HashWith(password string, scheme Scheme, cost int, salt string) (Digest, error) {
	switch scheme {
	case SchemeBcrypt:
		cost = h.clampCost(cost)
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return Digest{}, err
		}
		return Digest{Hash: string(hash), Scheme: SchemeBcrypt, Cost: cost}, nil
	case SchemeArgon2id:
		if cost < 1 {
			cost = h.cfg.DefaultCost
		}
		if cost < 1 {
			cost = 1
		}
		hash, err := h.argon.Hash(password, uint32(cost))
		if err != nil {
			return Digest{}, err
		}
		return Digest{Hash: hash, Scheme: SchemeArgon2id, Cost: cost}, nil
	case SchemeLegacy:
		if salt != "" {
			return Digest{Hash: legacyStored(password, salt), Scheme: SchemeLegacy, Salt: salt}, nil
		}
		hash, err := legacyEmbedded(password, h.cfg.SaltLength)
		if err != nil {
			return Digest{}, err
		}
		return Digest{Hash: hash, Scheme: SchemeLegacy}, nil
	default:
		return Digest{}, ErrUnknownScheme
	}
}

// Verify reports whether password matches d. A mismatch is (false, nil); an error is
// returned only when d cannot be parsed.
func (h *Hasher) Verify(password string, d Digest) (bool, error) {
	switch schemeOf(d) {
	case SchemeBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(d.Hash), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	case SchemeArgon2id:
		ok, err := h.argon.Verify(password, d.Hash)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
		}
		return ok, nil
	case SchemeLegacy:
		return legacyVerify(password, d.Hash, d.Salt, h.cfg.SaltLength)
	default:
		return false, ErrUnknownScheme
	}
}

// Dummy runs a verification against a digest built at construction time with the
// default scheme and cost. The result is discarded.
func (h *Hasher) Dummy(password string) {
	_, _ = h.Verify(password, h.dummy)
}

// NeedsRehash reports whether d was produced by another scheme or below MinCost.
func (h *Hasher) NeedsRehash(d Digest) bool {
	scheme := schemeOf(d)
	if scheme != h.cfg.Scheme {
		return true
	}

	switch scheme {
	case SchemeBcrypt:
		cost, err := bcrypt.Cost([]byte(d.Hash))
		if err != nil {
			return true
		}
		return cost < h.cfg.MinCost
	case SchemeArgon2id:
		upgrade, err := h.argon.NeedsUpgrade(d.Hash, uint32(h.cfg.MinCost))
		return err != nil || upgrade
	default:
		return false
	}
}

// Config returns a copy of the hasher configuration.
func (h *Hasher) Config() Config {
	return h.cfg
}

func (h *Hasher) clampCost(cost int) int {
	if cost < h.cfg.MinCost {
		return h.cfg.MinCost
	}
	if cost > h.cfg.MaxCost {
		return h.cfg.MaxCost
	}
	return cost
}

func schemeOf(d Digest) Scheme {
	if d.Scheme != "" {
		return d.Scheme
	}
	switch {
	case strings.HasPrefix(d.Hash, "$2"):
		return SchemeBcrypt
	case strings.HasPrefix(d.Hash, "$"+argon2ID+"$"):
		return SchemeArgon2id
	default:
		return SchemeLegacy
	}
}

// Salt returns n random hex characters.
func Salt(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("password: salt length must be positive")
	}
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:n], nil
}
