package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// ErrEmptyPassword is returned by Hash for an empty plaintext.
var ErrEmptyPassword = errors.New("password is empty")

// Config holds Argon2id cost parameters. Memory is expressed in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Argon2 hashes and verifies credentials. It is safe for concurrent use.
type Argon2 struct {
	config Config
}

// encoded is the decoded form of a stored PHC string.
type encoded struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a salted Argon2id key from plaintext and returns it in PHC
// form. A fresh salt is drawn for every call and embedded in the output.
func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches the stored hash. A stored value
// that cannot be decoded verifies as false; callers cannot distinguish a
// malformed hash from a wrong password.
func (a *Argon2) Verify(plaintext, stored string) bool {
	enc, err := decode(stored)
	if err != nil {
		// Burn comparable work so malformed records do not answer faster.
		_ = argon2.IDKey([]byte(plaintext), make([]byte, a.config.SaltLength), a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)
		return false
	}

	derived := argon2.IDKey([]byte(plaintext), enc.salt, enc.time, enc.memory, enc.parallelism, uint32(len(enc.key)))
	return subtle.ConstantTimeCompare(derived, enc.key) == 1
}

// NeedsUpgrade reports whether stored was produced with weaker parameters
// than the hasher's current configuration. Undecodable values report true.
func (a *Argon2) NeedsUpgrade(stored string) bool {
	enc, err := decode(stored)
	if err != nil {
		return true
	}
	return enc.memory < a.config.Memory ||
		enc.time < a.config.Time ||
		enc.parallelism < a.config.Parallelism ||
		uint32(len(enc.key)) != a.config.KeyLength
}

func decode(stored string) (*encoded, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, errors.New("not an argon2id PHC string")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	enc := &encoded{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &enc.memory, &enc.time, &enc.parallelism); err != nil {
		return nil, errors.New("invalid argon2 parameters")
	}
	if enc.memory < minMemoryKB || enc.time < minTimeCost || enc.parallelism < minParallelism {
		return nil, errors.New("argon2 parameters below minimum")
	}

	var err error
	if enc.salt, err = decodeSegment(parts[4]); err != nil || len(enc.salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt")
	}
	if enc.key, err = decodeSegment(parts[5]); err != nil || len(enc.key) < int(minKeyLength) {
		return nil, errors.New("invalid key")
	}
	return enc, nil
}

// decodeSegment accepts both padded and unpadded base64 so hashes written by
// other PHC encoders still verify.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KiB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	}
	return nil
}
