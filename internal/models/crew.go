package models

import "time"

const (
	CrewRoleLead       = "lead"
	CrewRoleSpecialist = "specialist"
	CrewRoleDriver     = "driver"
)

type CrewIdentity struct {
	ID          string
	TeamID      string
	Role        string
	Name        string
	PhoneDigits string
	PINHash     string
	PINLength   int
	IsActive    bool
}

// LockoutRecord is keyed by normalized phone.
type LockoutRecord struct {
	Phone          string
	FailedAttempts int
	LockedUntil    *time.Time
	UpdatedAt      time.Time
}

// CrewClaims is the logical content of a crew session token.
type CrewClaims struct {
	CrewMemberID string    `json:"crewMemberId"`
	TeamID       string    `json:"teamId"`
	Role         string    `json:"role"`
	Name         string    `json:"name"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// NormalizePhone keeps digits only and returns the last 10 of them,
// so "+1 (416) 555-1234" and "4165551234" compare equal.
func NormalizePhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return string(digits)
}
