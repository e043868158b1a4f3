package checkpoints

import (
	"context"
	"math"

	"github.com/BearBump/CrewTrack/internal/models"
)

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance between two points in meters.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

type PositionResult struct {
	Session *models.TrackingSession
	// Idle is set when this ping produced a synthetic idle checkpoint.
	Idle bool
}

// RecordPosition stores loc as the session's last location and appends an
// idle checkpoint when the crew has stayed within the tolerance of the idle
// anchor for the idle period. Inactive sessions are returned untouched.
//
// Pings are compared with the anchor, not with the previous ping, so slow
// steady movement keeps resetting the episode. Resetting the anchor
// refreshes UpdatedAt.
func (e *Engine) RecordPosition(ctx context.Context, sessionID, teamID string, loc models.Location) (*PositionResult, error) {
	var idle bool
	var cp models.Checkpoint
	s, err := e.repo.UpdateSession(ctx, sessionID, func(s *models.TrackingSession) error {
		if s.TeamID != teamID {
			return models.ErrForbidden
		}
		if !s.IsActive {
			return nil
		}
		now := e.now()
		l := loc
		s.LastLocation = &l

		anchor := s.IdleAnchor
		if anchor == nil || Distance(anchor.Lat, anchor.Lng, loc.Lat, loc.Lng) > e.idleTolerance {
			// первая точка или уехали: новый эпизод
			a := loc
			a.TimestampedAt = now
			s.IdleAnchor = &a
			s.UpdatedAt = now
			return nil
		}
		if now.Sub(s.UpdatedAt) < e.idleAfter {
			return nil
		}
		if last := s.LastCheckpoint(); last != nil && last.Status == models.StatusIdle {
			return nil
		}
		lat, lng := loc.Lat, loc.Lng
		cp = models.Checkpoint{Status: models.StatusIdle, Timestamp: now, Lat: &lat, Lng: &lng}
		s.Checkpoints = append(s.Checkpoints, cp)
		s.UpdatedAt = now
		idle = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	ref := models.JobRef{Kind: s.JobKind, ID: s.JobID}
	e.invalidate(ctx, ref)
	if idle {
		e.metrics.idle(s.JobKind)
		e.notify(s, nil, cp, true)
	}
	return &PositionResult{Session: s, Idle: idle}, nil
}
