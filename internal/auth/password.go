package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argonID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	maxMemoryKB    uint32 = 1024 * 1024
	minTime        uint32 = 1
	maxTime        uint32 = 32
	minParallelism uint8  = 1
	minSaltLen     uint32 = 16
	minKeyLen      uint32 = 16
	maxKeyLen      uint32 = 128
)

var ErrHashingFailed = errors.New("password hashing failed")

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, stored string) bool
}

type HashConfig struct {
	MemoryKB    uint32 `mapstructure:"memory_kb"`
	Time        uint32 `mapstructure:"time"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLen     uint32 `mapstructure:"salt_len"`
	KeyLen      uint32 `mapstructure:"key_len"`
}

func DefaultHashConfig() HashConfig {
	return HashConfig{
		MemoryKB:    64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLen:     16,
		KeyLen:      32,
	}
}

func (c HashConfig) Validate() error {
	switch {
	case c.MemoryKB < minMemoryKB || c.MemoryKB > maxMemoryKB:
		return fmt.Errorf("hash memory must be within [%d, %d] KB", minMemoryKB, maxMemoryKB)
	case c.Time < minTime || c.Time > maxTime:
		return fmt.Errorf("hash time must be within [%d, %d]", minTime, maxTime)
	case c.Parallelism < minParallelism:
		return errors.New("hash parallelism must be >= 1")
	case c.SaltLen < minSaltLen:
		return fmt.Errorf("hash salt length must be >= %d", minSaltLen)
	case c.KeyLen < minKeyLen || c.KeyLen > maxKeyLen:
		return fmt.Errorf("hash key length must be within [%d, %d]", minKeyLen, maxKeyLen)
	}
	return nil
}

var _ PasswordHasher = (*Argon2Hasher)(nil)

// Argon2Hasher produces argon2id PHC strings. Verify also accepts bcrypt
// hashes written by earlier versions of the service.
type Argon2Hasher struct {
	cfg  HashConfig
	rand io.Reader
}

func NewArgon2Hasher(cfg HashConfig) (*Argon2Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg, rand: rand.Reader}, nil
}

func (h *Argon2Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.cfg.SaltLen)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("%w: read salt: %v", ErrHashingFailed, err)
	}

	digest := argon2.IDKey([]byte(plain), salt, h.cfg.Time, h.cfg.MemoryKB, h.cfg.Parallelism, h.cfg.KeyLen)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argonID,
		argon2.Version,
		h.cfg.MemoryKB, h.cfg.Time, h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

func (h *Argon2Hasher) Verify(plain, stored string) bool {
	switch {
	case strings.HasPrefix(stored, "$"+argonID+"$"):
		p, err := parsePHC(stored)
		if err != nil {
			return false
		}
		computed := argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.digest)))
		return subtle.ConstantTimeCompare(computed, p.digest) == 1
	case isBcrypt(stored):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
	default:
		return false
	}
}

// NeedsRehash reports whether stored was produced with weaker or different
// parameters than the hasher's current configuration.
func (h *Argon2Hasher) NeedsRehash(stored string) bool {
	p, err := parsePHC(stored)
	if err != nil {
		return true
	}
	return p.memory < h.cfg.MemoryKB ||
		p.time < h.cfg.Time ||
		p.parallelism < h.cfg.Parallelism ||
		uint32(len(p.digest)) != h.cfg.KeyLen
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

func parsePHC(s string) (*phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argonID {
		return nil, errors.New("invalid phc format")
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errors.New("unsupported argon2 version")
	}

	var p phc
	var seen int
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.New("invalid phc parameter")
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid phc parameter %q", k)
		}
		switch k {
		case "m":
			if n < uint64(minMemoryKB) || n > uint64(maxMemoryKB) {
				return nil, errors.New("memory out of range")
			}
			p.memory = uint32(n)
		case "t":
			if n < uint64(minTime) || n > uint64(maxTime) {
				return nil, errors.New("time out of range")
			}
			p.time = uint32(n)
		case "p":
			if n < uint64(minParallelism) || n > 255 {
				return nil, errors.New("parallelism out of range")
			}
			p.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("unknown phc parameter %q", k)
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, errors.New("missing phc parameters")
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < int(minSaltLen) {
		return nil, errors.New("invalid salt")
	}
	if p.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil ||
		len(p.digest) < int(minKeyLen) || len(p.digest) > int(maxKeyLen) {
		return nil, errors.New("invalid digest")
	}
	return &p, nil
}
