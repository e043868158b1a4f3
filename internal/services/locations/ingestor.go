package locations

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/BearBump/CrewTrack/internal/services/checkpoints"
)

const DefaultMinInterval = 2 * time.Second

type Repository interface {
	InsertLocationHistory(ctx context.Context, p models.LocationPing) error
	UpsertTeamPosition(ctx context.Context, p models.TeamPosition) error
}

// PingGate admits at most one ping per key per interval.
type PingGate interface {
	Acquire(ctx context.Context, key string, interval time.Duration) (bool, error)
}

type SessionTracker interface {
	RecordPosition(ctx context.Context, sessionID, teamID string, loc models.Location) (*checkpoints.PositionResult, error)
}

type Ingestor struct {
	repo    Repository
	gate    PingGate
	tracker SessionTracker

	minInterval time.Duration
	now         func() time.Time
}

func New(repo Repository, gate PingGate, tracker SessionTracker) *Ingestor {
	return &Ingestor{
		repo:        repo,
		gate:        gate,
		tracker:     tracker,
		minInterval: DefaultMinInterval,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (i *Ingestor) WithSettings(minInterval time.Duration) *Ingestor {
	if minInterval > 0 {
		i.minInterval = minInterval
	}
	return i
}

func (i *Ingestor) WithClock(now func() time.Time) *Ingestor {
	i.now = now
	return i
}

type Result struct {
	// Accepted is false when the ping came too soon after the previous one
	// and was dropped.
	Accepted bool
	Idle     bool
}

// Ingest takes one GPS ping. Throttled pings are acknowledged but not
// stored.
func (i *Ingestor) Ingest(ctx context.Context, p models.LocationPing) (*Result, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = i.now()
	}
	if p.SessionID != nil && *p.SessionID == "" {
		p.SessionID = nil
	}

	// ключ по команде: чужая команда не может занять окно сессии
	key := "team:" + p.TeamID
	if p.SessionID != nil {
		key += ":session:" + *p.SessionID
	}
	if i.gate != nil {
		ok, err := i.gate.Acquire(ctx, "ping:"+key, i.minInterval)
		if err != nil {
			slog.Warn("ping gate", "key", key, "error", err.Error())
		} else if !ok {
			return &Result{}, nil
		}
	}

	res := &Result{Accepted: true}
	if p.SessionID != nil {
		pos, err := i.tracker.RecordPosition(ctx, *p.SessionID, p.TeamID, models.Location{
			Lat: p.Lat, Lng: p.Lng, Accuracy: p.Accuracy, TimestampedAt: p.Timestamp,
		})
		if err != nil {
			return nil, err
		}
		if pos.Session.IsActive {
			if err := i.repo.InsertLocationHistory(ctx, p); err != nil {
				return nil, err
			}
		}
		res.Idle = pos.Idle
	}

	if err := i.repo.UpsertTeamPosition(ctx, models.TeamPosition{
		TeamID:     p.TeamID,
		Lat:        p.Lat,
		Lng:        p.Lng,
		Accuracy:   p.Accuracy,
		Speed:      p.Speed,
		Heading:    p.Heading,
		RecordedAt: p.Timestamp,
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func validate(p models.LocationPing) error {
	switch {
	case p.TeamID == "":
		return &models.ValidationError{Field: "teamId", Reason: "is required"}
	case !finite(p.Lat) || p.Lat < -90 || p.Lat > 90:
		return &models.ValidationError{Field: "lat", Reason: "must be within [-90, 90]"}
	case !finite(p.Lng) || p.Lng < -180 || p.Lng > 180:
		return &models.ValidationError{Field: "lng", Reason: "must be within [-180, 180]"}
	case !finite(p.Accuracy) || p.Accuracy < 0:
		return &models.ValidationError{Field: "accuracy", Reason: "must be a non-negative number"}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
