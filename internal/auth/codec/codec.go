package codec

import (
	"crypto/hmac"
	"crypto/sha256"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// devSecret is used outside production when no secret is configured.
const devSecret = "crewtrack-dev-insecure-secret"

var ErrInsecureSecret = errors.New("signing secret is missing or a placeholder")

var placeholders = []string{"", "changeme", "change-me", "secret", "secretkey", "todo", "xxx"}

// Codec signs and verifies payloads with HMAC-SHA256 under a server-held secret.
type Codec struct {
	secret []byte
}

// New returns a codec for secret. In production a missing or placeholder
// secret is a configuration error; elsewhere the dev fallback is used.
func New(secret string, production bool) (*Codec, error) {
	if isPlaceholder(secret) {
		if production {
			return nil, ErrInsecureSecret
		}
		slog.Warn("signing secret not configured, using insecure development secret")
		secret = devSecret
	}
	return &Codec{secret: []byte(secret)}, nil
}

func isPlaceholder(secret string) bool {
	s := strings.ToLower(strings.TrimSpace(secret))
	for _, p := range placeholders {
		if s == p {
			return true
		}
	}
	return false
}

func (c *Codec) Sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verify compares in constant time.
func (c *Codec) Verify(payload, signature []byte) bool {
	return hmac.Equal(c.Sign(payload), signature)
}
