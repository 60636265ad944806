package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const argon2idPrefix = "$argon2id$"

// HashConfig holds the Argon2id cost parameters used for new hashes. Stored hashes carry
// their own parameters, so changing these values never invalidates existing credentials.
type HashConfig struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashConfig returns the production Argon2id parameters (64 MiB, 3 passes, 2 lanes).
func DefaultHashConfig() HashConfig {
	return HashConfig{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c HashConfig) withDefaults() HashConfig {
	d := DefaultHashConfig()
	if c.MemoryKiB == 0 {
		c.MemoryKiB = d.MemoryKiB
	}
	if c.Iterations == 0 {
		c.Iterations = d.Iterations
	}
	if c.Parallelism == 0 {
		c.Parallelism = d.Parallelism
	}
	if c.SaltLength == 0 {
		c.SaltLength = d.SaltLength
	}
	if c.KeyLength == 0 {
		c.KeyLength = d.KeyLength
	}
	return c
}

// HashFormat recognises one stored hash encoding and verifies plaintext against it.
// Match must only sniff the encoding; Verify must return false on any decode problem.
type HashFormat struct {
	Name   string
	Match  func(stored string) bool
	Verify func(plaintext []byte, stored string) bool
}

// Hasher hashes passwords with Argon2id and verifies against a chain of known formats
// (current first, legacy after). Callers must not log or persist plaintext passwords.
type Hasher struct {
	cfg     HashConfig
	formats []HashFormat
}

// NewHasher returns a Hasher producing Argon2id hashes with cfg and accepting Argon2id and
// legacy bcrypt hashes on verify.
func NewHasher(cfg HashConfig) *Hasher {
	return &Hasher{
		cfg:     cfg.withDefaults(),
		formats: []HashFormat{argon2idFormat(), bcryptFormat()},
	}
}

// WithFormat returns a copy of h with f placed at the front of the verification chain.
func (h *Hasher) WithFormat(f HashFormat) *Hasher {
	formats := make([]HashFormat, 0, len(h.formats)+1)
	formats = append(formats, f)
	formats = append(formats, h.formats...)
	return &Hasher{cfg: h.cfg, formats: formats}
}

// Hash produces a PHC-encoded Argon2id hash:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>
func (h *Hasher) Hash(password []byte) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey(password, salt, h.cfg.Iterations, h.cfg.MemoryKiB, h.cfg.Parallelism, h.cfg.KeyLength)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix,
		argon2.Version,
		h.cfg.MemoryKiB, h.cfg.Iterations, h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches stored. The first format whose Match accepts
// stored decides the result; an unrecognised encoding yields false.
func (h *Hasher) Verify(password []byte, stored string) bool {
	if stored == "" {
		return false
	}
	for _, f := range h.formats {
		if f.Match(stored) {
			return f.Verify(password, stored)
		}
	}
	return false
}

func argon2idFormat() HashFormat {
	return HashFormat{
		Name:  "argon2id",
		Match: func(stored string) bool { return strings.HasPrefix(stored, argon2idPrefix) },
		Verify: func(password []byte, stored string) bool {
			p, salt, key, err := decodeArgon2id(stored)
			if err != nil {
				return false
			}
			candidate := argon2.IDKey(password, salt, p.Iterations, p.MemoryKiB, p.Parallelism, uint32(len(key)))
			return subtle.ConstantTimeCompare(key, candidate) == 1
		},
	}
}

func bcryptFormat() HashFormat {
	return HashFormat{
		Name: "bcrypt",
		Match: func(stored string) bool {
			return strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$")
		},
		Verify: func(password []byte, stored string) bool {
			return bcrypt.CompareHashAndPassword([]byte(stored), password) == nil
		},
	}
}

func decodeArgon2id(encoded string) (HashConfig, []byte, []byte, error) {
	var p HashConfig
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return p, nil, nil, fmt.Errorf("invalid argon2id hash format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("parsing parameters: %w", err)
	}
	if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return p, nil, nil, fmt.Errorf("invalid argon2id parameters")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(key) == 0 {
		return p, nil, nil, fmt.Errorf("empty argon2id key")
	}
	return p, salt, key, nil
}
