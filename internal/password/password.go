// Package password hashes and verifies user passwords. Hashes are salted and
// deliberately slow; verification compares in constant time and never reveals why
// a password did not match.
package password

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// Supported algorithm names, as used in configuration.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// ErrUnknownAlgorithm is returned by New for an unsupported algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown password hash algorithm")

// Hasher turns a plaintext password into a storable hash and checks candidates against it.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// BcryptHasher hashes with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost   int
	pepper string
}

func NewBcryptHasher(cost int, pepper string) *BcryptHasher {
	return &BcryptHasher{cost: cost, pepper: pepper}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext+h.pepper), h.cost)
	if err != nil {
		return "", fmt.Errorf("in internal/password/password.go/BcryptHasher.Hash(): error while `bcrypt.GenerateFromPassword()` calling: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext+h.pepper)) == nil
}

// Argon2idHasher hashes with argon2id using the library's recommended parameters.
type Argon2idHasher struct {
	params *argon2id.Params
	pepper string
}

func NewArgon2idHasher(pepper string) *Argon2idHasher {
	return &Argon2idHasher{params: argon2id.DefaultParams, pepper: pepper}
}

func (h *Argon2idHasher) Hash(plaintext string) (string, error) {
	hash, err := argon2id.CreateHash(plaintext+h.pepper, h.params)
	if err != nil {
		return "", fmt.Errorf("in internal/password/password.go/Argon2idHasher.Hash(): error while `argon2id.CreateHash()` calling: %w", err)
	}
	return hash, nil
}

func (h *Argon2idHasher) Verify(plaintext, hash string) bool {
	ok, err := argon2id.ComparePasswordAndHash(plaintext+h.pepper, hash)
	return err == nil && ok
}

// Multi hashes new passwords with one algorithm but verifies hashes produced by any
// supported algorithm, picked by the hash prefix. Switching the configured
// algorithm therefore never locks existing users out.
type Multi struct {
	primary  Hasher
	bcrypt   *BcryptHasher
	argon2id *Argon2idHasher
}

// New builds a Multi hasher whose new hashes use the named algorithm.
func New(algorithm string, bcryptCost int, pepper string) (*Multi, error) {
	m := &Multi{
		bcrypt:   NewBcryptHasher(bcryptCost, pepper),
		argon2id: NewArgon2idHasher(pepper),
	}

	switch algorithm {
	case AlgorithmBcrypt:
		m.primary = m.bcrypt
	case AlgorithmArgon2id:
		m.primary = m.argon2id
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}

	return m, nil
}

func (m *Multi) Hash(plaintext string) (string, error) {
	return m.primary.Hash(plaintext)
}

func (m *Multi) Verify(plaintext, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return m.argon2id.Verify(plaintext, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return m.bcrypt.Verify(plaintext, hash)
	}
	return false
}
