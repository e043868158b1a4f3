package pgcrew

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/CrewTrack/internal/models"
)

const sessionColumns = `id, job_kind, job_id, team_id, crew_member_id, status, is_active,
  started_at, completed_at, last_location, idle_anchor, checkpoints, updated_at`

func scanSession(row pgx.Row) (*models.TrackingSession, error) {
	var s models.TrackingSession
	var kind string
	var lastLocation, idleAnchor, checkpoints []byte
	if err := row.Scan(
		&s.ID, &kind, &s.JobID, &s.TeamID, &s.CrewMemberID, &s.Status, &s.IsActive,
		&s.StartedAt, &s.CompletedAt, &lastLocation, &idleAnchor, &checkpoints, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.JobKind = models.JobKind(kind)
	var err error
	if s.LastLocation, err = decodeLocation(lastLocation); err != nil {
		return nil, errors.Wrap(err, "decode last_location")
	}
	if s.IdleAnchor, err = decodeLocation(idleAnchor); err != nil {
		return nil, errors.Wrap(err, "decode idle_anchor")
	}
	if len(checkpoints) > 0 {
		if err := json.Unmarshal(checkpoints, &s.Checkpoints); err != nil {
			return nil, errors.Wrap(err, "decode checkpoints")
		}
	}
	return &s, nil
}

func decodeLocation(raw []byte) (*models.Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var loc models.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

// encodeLocation returns nil for a missing location so the column stays NULL.
func encodeLocation(loc *models.Location) (any, error) {
	if loc == nil {
		return nil, nil
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type encodedSession struct {
	lastLocation any
	idleAnchor   any
	checkpoints  string
}

func encodeSession(s *models.TrackingSession) (encodedSession, error) {
	var out encodedSession
	var err error
	if out.lastLocation, err = encodeLocation(s.LastLocation); err != nil {
		return out, errors.Wrap(err, "encode last_location")
	}
	if out.idleAnchor, err = encodeLocation(s.IdleAnchor); err != nil {
		return out, errors.Wrap(err, "encode idle_anchor")
	}
	cps := s.Checkpoints
	if cps == nil {
		cps = []models.Checkpoint{}
	}
	b, err := json.Marshal(cps)
	if err != nil {
		return out, errors.Wrap(err, "encode checkpoints")
	}
	out.checkpoints = string(b)
	return out, nil
}

func (s *Storage) FindActiveSession(ctx context.Context, ref models.JobRef) (*models.TrackingSession, error) {
	sess, err := scanSession(s.db.QueryRow(ctx, `
SELECT `+sessionColumns+`
FROM tracking_sessions
WHERE job_kind = $1 AND job_id = $2 AND is_active
`, string(ref.Kind), ref.ID))
	if err != nil {
		return nil, notFound(err, "select active session")
	}
	return sess, nil
}

// LatestSession returns the active session or, failing that, the most
// recently started one.
func (s *Storage) LatestSession(ctx context.Context, ref models.JobRef) (*models.TrackingSession, error) {
	sess, err := scanSession(s.db.QueryRow(ctx, `
SELECT `+sessionColumns+`
FROM tracking_sessions
WHERE job_kind = $1 AND job_id = $2
ORDER BY is_active DESC, started_at DESC
LIMIT 1
`, string(ref.Kind), ref.ID))
	if err != nil {
		return nil, notFound(err, "select latest session")
	}
	return sess, nil
}

func (s *Storage) GetSession(ctx context.Context, id string) (*models.TrackingSession, error) {
	sess, err := scanSession(s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM tracking_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "select session")
	}
	return sess, nil
}

// CreateSession relies on the partial unique index on active sessions, so
// two concurrent starts for one job yield a single row.
func (s *Storage) CreateSession(ctx context.Context, sess *models.TrackingSession) (*models.TrackingSession, bool, error) {
	enc, err := encodeSession(sess)
	if err != nil {
		return nil, false, err
	}

	var id string
	err = s.db.QueryRow(ctx, `
INSERT INTO tracking_sessions (
  id, job_kind, job_id, team_id, crew_member_id, status, is_active,
  started_at, completed_at, last_location, idle_anchor, checkpoints, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11::jsonb,$12::jsonb,$13)
ON CONFLICT (job_kind, job_id) WHERE is_active DO NOTHING
RETURNING id
`, sess.ID, string(sess.JobKind), sess.JobID, sess.TeamID, sess.CrewMemberID, sess.Status, sess.IsActive,
		sess.StartedAt.UTC(), sess.CompletedAt, enc.lastLocation, enc.idleAnchor, enc.checkpoints, sess.UpdatedAt.UTC()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.FindActiveSession(ctx, models.JobRef{Kind: sess.JobKind, ID: sess.JobID})
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "insert session")
	}

	out, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// UpdateSession runs fn under a row lock; an error from fn aborts the
// transaction and is returned as is.
func (s *Storage) UpdateSession(ctx context.Context, id string, fn func(sess *models.TrackingSession) error) (*models.TrackingSession, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sess, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM tracking_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "lock session")
	}
	if err := fn(sess); err != nil {
		return nil, err
	}

	enc, err := encodeSession(sess)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
UPDATE tracking_sessions SET
  status = $2,
  is_active = $3,
  completed_at = $4,
  last_location = $5::jsonb,
  idle_anchor = $6::jsonb,
  checkpoints = $7::jsonb,
  updated_at = $8
WHERE id = $1
`, sess.ID, sess.Status, sess.IsActive, sess.CompletedAt, enc.lastLocation, enc.idleAnchor, enc.checkpoints, sess.UpdatedAt.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "update session")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return sess, nil
}
