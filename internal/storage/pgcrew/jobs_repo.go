package pgcrew

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/CrewTrack/internal/models"
)

// StageUpdate mirrors a session status onto its job. A nil Stage clears it.
type StageUpdate struct {
	Ref   models.JobRef
	Stage *string
	// PromoteInProgress moves a scheduled/confirmed job to in_progress.
	PromoteInProgress bool
	// Complete moves a not yet finished job to completed.
	Complete bool
}

func jobSelect(spec models.KindSpec) string {
	return fmt.Sprintf(`SELECT id, %s, team_id, status, stage, client_phone, updated_at FROM %s`, spec.CodeColumn, spec.Table)
}

func scanJob(kind models.JobKind, row pgx.Row) (*models.Job, error) {
	j := models.Job{Kind: kind}
	if err := row.Scan(&j.ID, &j.Code, &j.TeamID, &j.Status, &j.Stage, &j.ClientPhone, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

// ResolveJob finds a job by its id when ref parses as a UUID, by its
// human-readable code otherwise.
func (s *Storage) ResolveJob(ctx context.Context, kind models.JobKind, ref string) (*models.Job, error) {
	if !kind.Valid() {
		return nil, &models.ValidationError{Field: "jobType", Reason: "unknown job type"}
	}
	spec := kind.Spec()
	col := spec.CodeColumn
	if _, err := uuid.Parse(ref); err == nil {
		col = "id"
	}
	j, err := scanJob(kind, s.db.QueryRow(ctx, jobSelect(spec)+` WHERE `+col+` = $1`, ref))
	if err != nil {
		return nil, notFound(err, "select job")
	}
	return j, nil
}

func (s *Storage) GetJob(ctx context.Context, ref models.JobRef) (*models.Job, error) {
	j, err := scanJob(ref.Kind, s.db.QueryRow(ctx, jobSelect(ref.Kind.Spec())+` WHERE id = $1`, ref.ID))
	if err != nil {
		return nil, notFound(err, "select job")
	}
	return j, nil
}

// CreateJob inserts or replaces a job row. Used by seeding and tests.
func (s *Storage) CreateJob(ctx context.Context, j *models.Job) error {
	spec := j.Kind.Spec()
	status := j.Status
	if status == "" {
		status = models.JobStatusScheduled
	}
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
INSERT INTO %[1]s (id, %[2]s, team_id, status, stage, client_phone, updated_at)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (id) DO UPDATE SET
  %[2]s = EXCLUDED.%[2]s,
  team_id = EXCLUDED.team_id,
  status = EXCLUDED.status,
  stage = EXCLUDED.stage,
  client_phone = EXCLUDED.client_phone,
  updated_at = now()
`, spec.Table, spec.CodeColumn), j.ID, j.Code, j.TeamID, status, j.Stage, j.ClientPhone)
	if err != nil {
		return errors.Wrap(err, "upsert job")
	}
	return nil
}

func (s *Storage) ProjectJobStage(ctx context.Context, upd StageUpdate) (*models.Job, error) {
	spec := upd.Ref.Kind.Spec()
	q := fmt.Sprintf(`
UPDATE %s SET
  stage = $2,
  status = CASE
    WHEN $4 AND status IN ('scheduled', 'confirmed', 'in_progress') THEN 'completed'
    WHEN $3 AND status IN ('scheduled', 'confirmed') THEN 'in_progress'
    ELSE status
  END,
  updated_at = now()
WHERE id = $1
RETURNING id, %s, team_id, status, stage, client_phone, updated_at
`, spec.Table, spec.CodeColumn)
	j, err := scanJob(upd.Ref.Kind, s.db.QueryRow(ctx, q, upd.Ref.ID, upd.Stage, upd.PromoteInProgress, upd.Complete))
	if err != nil {
		return nil, notFound(err, "update job stage")
	}
	return j, nil
}
