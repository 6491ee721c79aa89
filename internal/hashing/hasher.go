package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"eatflow-gateway/internal/util"

	"golang.org/x/crypto/blake2b"
)

const keySize = 32

var ErrInvalidKey = errors.New("hashing key must be 16 to 64 bytes")

// Hasher derives keyed fingerprints of identifiers that must never reach
// logs, events or cache keys in clear text (emails, auth session ids).
type Hasher struct {
	key []byte
}

// NewHasher uses key when set; an empty key gets a random one, which makes
// fingerprints unstable across restarts.
func NewHasher(key string) (*Hasher, error) {
	if key == "" {
		random := make([]byte, keySize)
		if _, err := rand.Read(random); err != nil {
			return nil, fmt.Errorf("failed to generate hashing key: %w", err)
		}
		util.Warn("hashing.target_key not set, using an ephemeral key")
		return &Hasher{key: random}, nil
	}
	if len(key) < 16 || len(key) > blake2b.Size {
		return nil, ErrInvalidKey
	}
	return &Hasher{key: []byte(key)}, nil
}

// Fingerprint returns the hex keyed BLAKE2b-256 of value within a purpose
func (h *Hasher) Fingerprint(purpose, value string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is checked in NewHasher
		panic(err)
	}
	mac.Write([]byte(purpose))
	mac.Write([]byte{0})
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Target fingerprints a normalized email
func (h *Hasher) Target(email string) string {
	return h.Fingerprint("target", util.NormalizeEmail(email))
}

// Equal compares two fingerprints in constant time
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
