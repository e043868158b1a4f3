package crewauth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/CrewTrack/internal/models"
)

const tokenSeparator = "."

// Strict: non-zero trailing bits are rejected, so every encoded string maps
// to exactly one byte sequence.
var b64 = base64.RawURLEncoding.Strict()

type tokenPayload struct {
	CrewMemberID string `json:"crewMemberId"`
	TeamID       string `json:"teamId"`
	Role         string `json:"role"`
	Name         string `json:"name"`
	ExpiresAt    int64  `json:"expiresAt"` // unix ms
}

func (s *Service) encode(claims models.CrewClaims) (string, error) {
	payload, err := json.Marshal(tokenPayload{
		CrewMemberID: claims.CrewMemberID,
		TeamID:       claims.TeamID,
		Role:         claims.Role,
		Name:         claims.Name,
		ExpiresAt:    claims.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	sig := s.codec.Sign(payload)
	return b64.EncodeToString(payload) + tokenSeparator + b64.EncodeToString(sig), nil
}

// Verify returns the token's claims or ErrInvalidToken. Bad signature,
// expiry and malformed input all end in the same result.
func (s *Service) Verify(token string) (*models.CrewClaims, error) {
	parts := strings.Split(token, tokenSeparator)
	if len(parts) != 2 {
		return nil, models.ErrInvalidToken
	}
	payload, err := b64.DecodeString(parts[0])
	if err != nil {
		return nil, models.ErrInvalidToken
	}
	sig, err := b64.DecodeString(parts[1])
	if err != nil {
		return nil, models.ErrInvalidToken
	}
	if !s.codec.Verify(payload, sig) {
		return nil, models.ErrInvalidToken
	}

	var p tokenPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, models.ErrInvalidToken
	}
	exp := time.UnixMilli(p.ExpiresAt).UTC()
	if !s.now().Before(exp) {
		return nil, models.ErrInvalidToken
	}
	if p.CrewMemberID == "" || p.TeamID == "" {
		return nil, models.ErrInvalidToken
	}

	return &models.CrewClaims{
		CrewMemberID: p.CrewMemberID,
		TeamID:       p.TeamID,
		Role:         p.Role,
		Name:         p.Name,
		ExpiresAt:    exp,
	}, nil
}
