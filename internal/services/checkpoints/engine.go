package checkpoints

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/CrewTrack/internal/broker/messages"
	"github.com/BearBump/CrewTrack/internal/cache"
	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/BearBump/CrewTrack/internal/storage/pgcrew"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultIdleAfter     = 10 * time.Minute
	DefaultIdleTolerance = 20.0 // meters
	defaultNotifyTimeout = 10 * time.Second
)

type Repository interface {
	ResolveJob(ctx context.Context, kind models.JobKind, ref string) (*models.Job, error)
	FindActiveSession(ctx context.Context, ref models.JobRef) (*models.TrackingSession, error)
	// CreateSession inserts s unless an active session for the job exists;
	// on conflict it returns the existing one with created=false.
	CreateSession(ctx context.Context, s *models.TrackingSession) (*models.TrackingSession, bool, error)
	GetSession(ctx context.Context, id string) (*models.TrackingSession, error)
	// UpdateSession locks the row, applies fn and writes the result back.
	UpdateSession(ctx context.Context, id string, fn func(s *models.TrackingSession) error) (*models.TrackingSession, error)
	ProjectJobStage(ctx context.Context, upd pgcrew.StageUpdate) (*models.Job, error)
	LatestSession(ctx context.Context, ref models.JobRef) (*models.TrackingSession, error)
}

// Notifier delivers checkpoint events to push/SMS fan-out.
type Notifier interface {
	NotifyCheckpoint(ctx context.Context, msg messages.CheckpointRecorded) error
}

type Engine struct {
	repo     Repository
	notifier Notifier
	cache    cache.BytesCache
	viewTTL  time.Duration

	idleAfter     time.Duration
	idleTolerance float64
	notifyTimeout time.Duration
	now           func() time.Time

	metrics *engineMetrics
	wg      sync.WaitGroup
}

func New(repo Repository, notifier Notifier, c cache.BytesCache, viewTTL time.Duration) *Engine {
	return &Engine{
		repo:          repo,
		notifier:      notifier,
		cache:         c,
		viewTTL:       viewTTL,
		idleAfter:     DefaultIdleAfter,
		idleTolerance: DefaultIdleTolerance,
		notifyTimeout: defaultNotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) WithIdleSettings(after time.Duration, toleranceMeters float64) *Engine {
	if after > 0 {
		e.idleAfter = after
	}
	if toleranceMeters > 0 {
		e.idleTolerance = toleranceMeters
	}
	return e
}

// WithNotifyTimeout bounds each background notification publish.
func (e *Engine) WithNotifyTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.notifyTimeout = d
	}
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) WithMetrics(reg prometheus.Registerer) *Engine {
	e.metrics = newEngineMetrics(reg)
	return e
}

// Wait blocks until in-flight notifications are done.
func (e *Engine) Wait() {
	e.wg.Wait()
}

type StartInput struct {
	JobRef       string
	Kind         models.JobKind
	TeamID       string
	CrewMemberID string
}

type StartResult struct {
	Session       *models.TrackingSession
	AlreadyActive bool
}

// StartSession opens a tracking session for the job, or returns the active
// one if a crew app retries.
func (e *Engine) StartSession(ctx context.Context, in StartInput) (*StartResult, error) {
	if !in.Kind.Valid() {
		return nil, &models.ValidationError{Field: "jobType", Reason: "unknown job type"}
	}
	if in.JobRef == "" {
		return nil, &models.ValidationError{Field: "jobRef", Reason: "is required"}
	}

	job, err := e.repo.ResolveJob(ctx, in.Kind, in.JobRef)
	if err != nil {
		return nil, err
	}
	if !job.AssignedTo(in.TeamID) {
		return nil, models.ErrForbidden
	}

	active, err := e.repo.FindActiveSession(ctx, job.Ref())
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if active != nil {
		return &StartResult{Session: active, AlreadyActive: true}, nil
	}

	now := e.now()
	first := in.Kind.FirstStatus()
	s := &models.TrackingSession{
		ID:           uuid.NewString(),
		JobID:        job.ID,
		JobKind:      in.Kind,
		TeamID:       in.TeamID,
		CrewMemberID: in.CrewMemberID,
		Status:       first,
		IsActive:     true,
		StartedAt:    now,
		Checkpoints:  []models.Checkpoint{{Status: first, Timestamp: now}},
		UpdatedAt:    now,
	}
	saved, created, err := e.repo.CreateSession(ctx, s)
	if err != nil {
		return nil, err
	}
	if !created {
		return &StartResult{Session: saved, AlreadyActive: true}, nil
	}

	slog.Info("tracking session started", "session_id", saved.ID, "job", job.Ref().String(), "team_id", in.TeamID)
	job, err = e.project(ctx, saved, first)
	if err != nil {
		return nil, err
	}
	e.invalidate(ctx, job.Ref())
	e.notify(saved, job, saved.Checkpoints[0], false)
	return &StartResult{Session: saved}, nil
}

type AdvanceInput struct {
	SessionID string
	TeamID    string
	Status    string
	Note      *string
	Lat       *float64
	Lng       *float64
}

// Advance records a crew check-in. Ordering is advisory only: any status of
// the job's flow is accepted so crews with bad connectivity never get stuck.
func (e *Engine) Advance(ctx context.Context, in AdvanceInput) (*models.Checkpoint, *models.TrackingSession, error) {
	if in.SessionID == "" {
		return nil, nil, &models.ValidationError{Field: "sessionId", Reason: "is required"}
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		return nil, nil, &models.ValidationError{Field: "lat", Reason: "lat and lng must be given together"}
	}

	var cp models.Checkpoint
	var prev string
	s, err := e.repo.UpdateSession(ctx, in.SessionID, func(s *models.TrackingSession) error {
		if s.TeamID != in.TeamID {
			return models.ErrForbidden
		}
		if in.Status == models.StatusNotStarted || !s.JobKind.KnowsStatus(in.Status) {
			return &models.ValidationError{Field: "status", Reason: "unknown status for " + string(s.JobKind)}
		}
		terminal := s.JobKind.IsTerminal(in.Status)
		if !s.IsActive && !terminal {
			return models.ErrSessionInactive
		}

		now := e.now()
		prev = s.Status
		cp = models.Checkpoint{Status: in.Status, Timestamp: now, Lat: in.Lat, Lng: in.Lng, Note: in.Note}
		s.Checkpoints = append(s.Checkpoints, cp)
		s.Status = in.Status
		s.UpdatedAt = now
		if terminal {
			s.IsActive = false
			if s.CompletedAt == nil {
				s.CompletedAt = &now
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.checkOrder(s, prev, in.Status)

	job, err := e.project(ctx, s, in.Status)
	if err != nil {
		return nil, nil, err
	}
	e.invalidate(ctx, job.Ref())
	e.notify(s, job, cp, false)
	return &cp, s, nil
}

// EndSession closes a session without the terminal checkpoint (sign-off
// skipped). The job keeps its coarse status; its stage is cleared.
func (e *Engine) EndSession(ctx context.Context, sessionID, teamID string) (*models.TrackingSession, error) {
	s, err := e.repo.UpdateSession(ctx, sessionID, func(s *models.TrackingSession) error {
		if s.TeamID != teamID {
			return models.ErrForbidden
		}
		if !s.IsActive {
			return nil
		}
		now := e.now()
		s.IsActive = false
		s.CompletedAt = &now
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	ref := models.JobRef{Kind: s.JobKind, ID: s.JobID}
	if _, err := e.repo.ProjectJobStage(ctx, pgcrew.StageUpdate{Ref: ref}); err != nil {
		return nil, err
	}
	e.invalidate(ctx, ref)
	slog.Info("tracking session ended", "session_id", s.ID, "job", ref.String())
	return s, nil
}

func (e *Engine) project(ctx context.Context, s *models.TrackingSession, status string) (*models.Job, error) {
	stage := status
	return e.repo.ProjectJobStage(ctx, pgcrew.StageUpdate{
		Ref:               models.JobRef{Kind: s.JobKind, ID: s.JobID},
		Stage:             &stage,
		PromoteInProgress: s.JobKind.IsEnRoute(status),
		Complete:          s.JobKind.IsTerminal(status),
	})
}

func (e *Engine) checkOrder(s *models.TrackingSession, prev, next string) {
	from, to := s.JobKind.StepIndex(prev), s.JobKind.StepIndex(next)
	if from < 0 || to < 0 {
		return
	}
	switch {
	case to < from:
		slog.Warn("backward checkpoint transition", "session_id", s.ID, "from", prev, "to", next)
		e.metrics.outOfOrder(s.JobKind, "backward")
	case to > from+1:
		slog.Info("checkpoint skipped steps", "session_id", s.ID, "from", prev, "to", next)
		e.metrics.outOfOrder(s.JobKind, "skip")
	}
	e.metrics.checkpoint(s.JobKind, next)
}

// notify is fire-and-forget: it never blocks the caller and its errors are
// only logged.
func (e *Engine) notify(s *models.TrackingSession, job *models.Job, cp models.Checkpoint, synthetic bool) {
	if e.notifier == nil {
		return
	}
	msg := messages.CheckpointRecorded{
		SessionID:    s.ID,
		JobKind:      string(s.JobKind),
		JobID:        s.JobID,
		TeamID:       s.TeamID,
		CrewMemberID: s.CrewMemberID,
		Status:       cp.Status,
		Note:         cp.Note,
		Lat:          cp.Lat,
		Lng:          cp.Lng,
		Synthetic:    synthetic,
		At:           cp.Timestamp,
	}
	if job != nil {
		msg.JobCode = job.Code
		msg.ClientPhone = job.ClientPhone
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		if err := e.notifier.NotifyCheckpoint(ctx, msg); err != nil {
			slog.Error("checkpoint notification", "session_id", msg.SessionID, "status", msg.Status, "error", err.Error())
		}
	}()
}
