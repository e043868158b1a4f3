package pgcrew

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/CrewTrack/internal/models"
)

const crewColumns = `id, team_id, role, name, phone_digits, pin_hash, pin_length, is_active`

func scanCrew(row pgx.Row) (*models.CrewIdentity, error) {
	var c models.CrewIdentity
	if err := row.Scan(&c.ID, &c.TeamID, &c.Role, &c.Name, &c.PhoneDigits, &c.PINHash, &c.PINLength, &c.IsActive); err != nil {
		return nil, err
	}
	return &c, nil
}

// phoneKey normalizes the stored phone the same way models.NormalizePhone
// does, so rows written by dispatch tooling with punctuation or a country
// code still match. Backed by idx_crew_members_phone_key.
const phoneKey = `right(regexp_replace(phone_digits, '\D', '', 'g'), 10)`

// FindCrewByPhone returns the active member with the given normalized phone.
func (s *Storage) FindCrewByPhone(ctx context.Context, digits string) (*models.CrewIdentity, error) {
	c, err := scanCrew(s.db.QueryRow(ctx, `
SELECT `+crewColumns+`
FROM crew_members
WHERE `+phoneKey+` = $1 AND is_active
ORDER BY created_at
LIMIT 1
`, digits))
	if err != nil {
		return nil, notFound(err, "select crew by phone")
	}
	return c, nil
}

func (s *Storage) FindCrewByID(ctx context.Context, id string) (*models.CrewIdentity, error) {
	c, err := scanCrew(s.db.QueryRow(ctx, `
SELECT `+crewColumns+`
FROM crew_members
WHERE id = $1 AND is_active
`, id))
	if err != nil {
		return nil, notFound(err, "select crew by id")
	}
	return c, nil
}

func (s *Storage) CreateCrewMember(ctx context.Context, c *models.CrewIdentity) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO crew_members (id, team_id, role, name, phone_digits, pin_hash, pin_length, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  team_id = EXCLUDED.team_id,
  role = EXCLUDED.role,
  name = EXCLUDED.name,
  phone_digits = EXCLUDED.phone_digits,
  pin_hash = EXCLUDED.pin_hash,
  pin_length = EXCLUDED.pin_length,
  is_active = EXCLUDED.is_active,
  updated_at = now()
`, c.ID, c.TeamID, c.Role, c.Name, models.NormalizePhone(c.PhoneDigits), c.PINHash, c.PINLength, c.IsActive)
	if err != nil {
		return errors.Wrap(err, "upsert crew member")
	}
	return nil
}

func (s *Storage) UpdateCrewPIN(ctx context.Context, id, pinHash string, pinLength int) error {
	tag, err := s.db.Exec(ctx, `
UPDATE crew_members SET pin_hash = $2, pin_length = $3, updated_at = now()
WHERE id = $1
`, id, pinHash, pinLength)
	if err != nil {
		return errors.Wrap(err, "update crew pin")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Storage) RegisterDevice(ctx context.Context, deviceID, teamID, label string) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO crew_devices (id, team_id, label) VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET team_id = EXCLUDED.team_id, label = EXCLUDED.label
`, deviceID, teamID, label)
	if err != nil {
		return errors.Wrap(err, "upsert device")
	}
	return nil
}

// DeviceTeam returns the team a registered tablet belongs to.
func (s *Storage) DeviceTeam(ctx context.Context, deviceID string) (string, error) {
	var teamID string
	if err := s.db.QueryRow(ctx, `SELECT team_id FROM crew_devices WHERE id = $1`, deviceID).Scan(&teamID); err != nil {
		return "", notFound(err, "select device")
	}
	return teamID, nil
}

func (s *Storage) GetLockout(ctx context.Context, phone string) (*models.LockoutRecord, error) {
	var r models.LockoutRecord
	err := s.db.QueryRow(ctx, `
SELECT phone, failed_attempts, locked_until, updated_at
FROM crew_login_lockouts WHERE phone = $1
`, phone).Scan(&r.Phone, &r.FailedAttempts, &r.LockedUntil, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select lockout")
	}
	return &r, nil
}

func (s *Storage) DeleteLockout(ctx context.Context, phone string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM crew_login_lockouts WHERE phone = $1`, phone); err != nil {
		return errors.Wrap(err, "delete lockout")
	}
	return nil
}

// IncrementLockout is a single upsert so concurrent failures never lose a
// count. locked_until is set once, when the count first reaches threshold.
func (s *Storage) IncrementLockout(ctx context.Context, phone string, now time.Time, threshold int, lockUntil time.Time) (*models.LockoutRecord, error) {
	var r models.LockoutRecord
	err := s.db.QueryRow(ctx, `
INSERT INTO crew_login_lockouts AS l (phone, failed_attempts, locked_until, updated_at)
VALUES ($1, 1, CASE WHEN 1 >= $3 THEN $4::timestamptz END, $2)
ON CONFLICT (phone) DO UPDATE SET
  failed_attempts = l.failed_attempts + 1,
  locked_until = CASE
    WHEN l.locked_until IS NOT NULL THEN l.locked_until
    WHEN l.failed_attempts + 1 >= $3 THEN $4::timestamptz
    ELSE NULL
  END,
  updated_at = $2
RETURNING phone, failed_attempts, locked_until, updated_at
`, phone, now.UTC(), threshold, lockUntil.UTC()).Scan(&r.Phone, &r.FailedAttempts, &r.LockedUntil, &r.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "upsert lockout")
	}
	return &r, nil
}
