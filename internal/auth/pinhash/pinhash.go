// Package pinhash hashes crew PINs with the server's keyed hash.
//
// Hashes written by this service are hex HMAC-SHA256 values. Hashes that start
// with the bcrypt prefix are accepted too, since dispatch tooling may write them.
package pinhash

import (
	"encoding/hex"
	"strings"

	"github.com/BearBump/CrewTrack/internal/auth/codec"
	"github.com/BearBump/CrewTrack/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinLength = 4
	MaxLength = 6
)

type Hasher struct {
	c *codec.Codec
}

func New(c *codec.Codec) *Hasher {
	return &Hasher{c: c}
}

func (h *Hasher) Hash(pin string) string {
	return hex.EncodeToString(h.c.Sign([]byte(pin)))
}

// Matches reports whether pin hashes to stored. Never panics on garbage input.
func (h *Hasher) Matches(pin, stored string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(pin)) == nil
	}
	sig, err := hex.DecodeString(stored)
	if err != nil {
		return false
	}
	return h.c.Verify([]byte(pin), sig)
}

// Validate checks PIN shape: 4 to 6 digits.
func Validate(pin string) error {
	if len(pin) < MinLength || len(pin) > MaxLength {
		return &models.ValidationError{Field: "pin", Reason: "must be 4 to 6 digits"}
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return &models.ValidationError{Field: "pin", Reason: "must contain digits only"}
		}
	}
	return nil
}
