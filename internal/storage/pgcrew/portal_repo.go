package pgcrew

import (
	"context"

	"github.com/pkg/errors"

	"github.com/BearBump/CrewTrack/internal/models"
)

func (s *Storage) CreateClientMessage(ctx context.Context, m *models.ClientMessage) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO client_messages (id, job_kind, job_id, body, created_at)
VALUES ($1,$2,$3,$4,$5)
`, m.ID, string(m.JobKind), m.JobID, m.Body, m.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert client message")
	}
	return nil
}

func (s *Storage) CreateChangeRequest(ctx context.Context, r *models.ChangeRequest) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO change_requests (id, job_kind, job_id, request_type, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, r.ID, string(r.JobKind), r.JobID, r.RequestType, r.Details, r.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert change request")
	}
	return nil
}

func (s *Storage) ListClientMessages(ctx context.Context, ref models.JobRef, limit int) ([]*models.ClientMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
SELECT id, job_kind, job_id, body, created_at
FROM client_messages
WHERE job_kind = $1 AND job_id = $2
ORDER BY created_at DESC
LIMIT $3
`, string(ref.Kind), ref.ID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select client messages")
	}
	defer rows.Close()

	var out []*models.ClientMessage
	for rows.Next() {
		var m models.ClientMessage
		var kind string
		if err := rows.Scan(&m.ID, &kind, &m.JobID, &m.Body, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan client message")
		}
		m.JobKind = models.JobKind(kind)
		out = append(out, &m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
