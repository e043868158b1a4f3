package checkpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/pkg/errors"
)

func viewKey(ref models.JobRef) string {
	return fmt.Sprintf("crewtrack:view:%s:%s", ref.Kind, ref.ID)
}

// ResolveJob looks a job up by id or code.
func (e *Engine) ResolveJob(ctx context.Context, kind models.JobKind, ref string) (*models.Job, error) {
	return e.repo.ResolveJob(ctx, kind, ref)
}

// TrackingView builds the client-facing projection of the job and its most
// recent session. Cache errors are ignored.
func (e *Engine) TrackingView(ctx context.Context, job *models.Job) (*models.TrackingView, error) {
	key := viewKey(job.Ref())
	if e.cache != nil {
		if b, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			var v models.TrackingView
			if err := json.Unmarshal(b, &v); err == nil {
				return &v, nil
			}
		}
	}

	v := &models.TrackingView{
		JobKind:     job.Kind,
		JobCode:     job.Code,
		JobStatus:   job.Status,
		Stage:       job.Stage,
		Checkpoints: []models.Checkpoint{},
	}
	s, err := e.repo.LatestSession(ctx, job.Ref())
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		v.IsActive = s.IsActive
		v.LastLocation = s.LastLocation
		if len(s.Checkpoints) > 0 {
			v.Checkpoints = s.Checkpoints
		}
	}

	if e.cache != nil && e.viewTTL > 0 {
		if b, err := json.Marshal(v); err == nil {
			if err := e.cache.Set(ctx, key, b, e.viewTTL); err != nil {
				slog.Debug("tracking view cache set", "key", key, "error", err.Error())
			}
		}
	}
	return v, nil
}

func (e *Engine) invalidate(ctx context.Context, ref models.JobRef) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, viewKey(ref)); err != nil {
		slog.Warn("tracking view cache invalidate", "job", ref.String(), "error", err.Error())
	}
}
