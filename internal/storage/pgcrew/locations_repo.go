package pgcrew

import (
	"context"

	"github.com/pkg/errors"

	"github.com/BearBump/CrewTrack/internal/models"
)

func (s *Storage) InsertLocationHistory(ctx context.Context, p models.LocationPing) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO location_history (session_id, team_id, lat, lng, accuracy, speed, heading, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, p.SessionID, p.TeamID, p.Lat, p.Lng, p.Accuracy, p.Speed, p.Heading, p.Timestamp.UTC())
	if err != nil {
		return errors.Wrap(err, "insert location history")
	}
	return nil
}

// UpsertTeamPosition moves the team's live position. Older pings replayed
// from the app's offline queue never move it back.
func (s *Storage) UpsertTeamPosition(ctx context.Context, p models.TeamPosition) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO team_positions (team_id, lat, lng, accuracy, speed, heading, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (team_id) DO UPDATE SET
  lat = EXCLUDED.lat,
  lng = EXCLUDED.lng,
  accuracy = EXCLUDED.accuracy,
  speed = EXCLUDED.speed,
  heading = EXCLUDED.heading,
  recorded_at = EXCLUDED.recorded_at
WHERE team_positions.recorded_at <= EXCLUDED.recorded_at
`, p.TeamID, p.Lat, p.Lng, p.Accuracy, p.Speed, p.Heading, p.RecordedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "upsert team position")
	}
	return nil
}

func (s *Storage) GetTeamPosition(ctx context.Context, teamID string) (*models.TeamPosition, error) {
	var p models.TeamPosition
	err := s.db.QueryRow(ctx, `
SELECT team_id, lat, lng, accuracy, speed, heading, recorded_at
FROM team_positions WHERE team_id = $1
`, teamID).Scan(&p.TeamID, &p.Lat, &p.Lng, &p.Accuracy, &p.Speed, &p.Heading, &p.RecordedAt)
	if err != nil {
		return nil, notFound(err, "select team position")
	}
	return &p, nil
}

func (s *Storage) ListLocationHistory(ctx context.Context, teamID string, limit int) ([]*models.LocationPing, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
SELECT session_id, team_id, lat, lng, accuracy, speed, heading, recorded_at
FROM location_history
WHERE team_id = $1
ORDER BY recorded_at DESC
LIMIT $2
`, teamID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select location history")
	}
	defer rows.Close()

	var out []*models.LocationPing
	for rows.Next() {
		var p models.LocationPing
		if err := rows.Scan(&p.SessionID, &p.TeamID, &p.Lat, &p.Lng, &p.Accuracy, &p.Speed, &p.Heading, &p.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan location")
		}
		out = append(out, &p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
