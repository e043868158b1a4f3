package pgcrew

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS crew_members (
  id TEXT PRIMARY KEY,
  team_id TEXT NOT NULL,
  role TEXT NOT NULL,
  name TEXT NOT NULL,
  phone_digits TEXT NOT NULL,
  pin_hash TEXT NOT NULL,
  pin_length INT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`DROP INDEX IF EXISTS idx_crew_members_phone`,
		`CREATE INDEX IF NOT EXISTS idx_crew_members_phone_key ON crew_members((` + phoneKey + `)) WHERE is_active`,
		`
CREATE TABLE IF NOT EXISTS crew_devices (
  id TEXT PRIMARY KEY,
  team_id TEXT NOT NULL,
  label TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS crew_login_lockouts (
  phone TEXT PRIMARY KEY,
  failed_attempts INT NOT NULL,
  locked_until TIMESTAMPTZ NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS moves (
  id TEXT PRIMARY KEY,
  move_code TEXT NOT NULL UNIQUE,
  team_id TEXT NULL,
  status TEXT NOT NULL DEFAULT 'scheduled',
  stage TEXT NULL,
  client_phone TEXT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS deliveries (
  id TEXT PRIMARY KEY,
  delivery_number TEXT NOT NULL UNIQUE,
  team_id TEXT NULL,
  status TEXT NOT NULL DEFAULT 'scheduled',
  stage TEXT NULL,
  client_phone TEXT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS tracking_sessions (
  id TEXT PRIMARY KEY,
  job_kind TEXT NOT NULL,
  job_id TEXT NOT NULL,
  team_id TEXT NOT NULL,
  crew_member_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  is_active BOOLEAN NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ NULL,
  last_location JSONB NULL,
  idle_anchor JSONB NULL,
  checkpoints JSONB NOT NULL DEFAULT '[]'::jsonb,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// Не больше одной активной сессии на работу.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_tracking_sessions_active ON tracking_sessions(job_kind, job_id) WHERE is_active`,
		`ALTER TABLE tracking_sessions ADD COLUMN IF NOT EXISTS idle_anchor JSONB NULL`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_sessions_job ON tracking_sessions(job_kind, job_id, started_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS location_history (
  id BIGSERIAL PRIMARY KEY,
  session_id TEXT NULL,
  team_id TEXT NOT NULL,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  accuracy DOUBLE PRECISION NOT NULL,
  speed DOUBLE PRECISION NULL,
  heading DOUBLE PRECISION NULL,
  recorded_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_location_history_team_time ON location_history(team_id, recorded_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS team_positions (
  team_id TEXT PRIMARY KEY,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  accuracy DOUBLE PRECISION NOT NULL,
  speed DOUBLE PRECISION NULL,
  heading DOUBLE PRECISION NULL,
  recorded_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS client_messages (
  id TEXT PRIMARY KEY,
  job_kind TEXT NOT NULL,
  job_id TEXT NOT NULL,
  body TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS change_requests (
  id TEXT PRIMARY KEY,
  job_kind TEXT NOT NULL,
  job_id TEXT NOT NULL,
  request_type TEXT NOT NULL,
  details TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
