package checkpoints

import (
	"context"
	"sync"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/BearBump/CrewTrack/internal/storage/pgcrew"
)

// memRepo keeps the same contract as pgcrew.Storage: one active session per
// job and serialized session updates.
type memRepo struct {
	mu       sync.Mutex
	jobs     map[models.JobRef]*models.Job
	sessions map[string]*models.TrackingSession
	order    []string
	err      error
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: map[models.JobRef]*models.Job{}, sessions: map[string]*models.TrackingSession{}}
}

func (r *memRepo) addJob(j *models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.Status == "" {
		j.Status = models.JobStatusScheduled
	}
	r.jobs[j.Ref()] = j
}

func (r *memRepo) job(ref models.JobRef) models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[ref]
}

func cloneSession(s *models.TrackingSession) *models.TrackingSession {
	cp := *s
	cp.Checkpoints = append([]models.Checkpoint(nil), s.Checkpoints...)
	if s.LastLocation != nil {
		l := *s.LastLocation
		cp.LastLocation = &l
	}
	if s.IdleAnchor != nil {
		a := *s.IdleAnchor
		cp.IdleAnchor = &a
	}
	return &cp
}

func (r *memRepo) ResolveJob(ctx context.Context, kind models.JobKind, ref string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, j := range r.jobs {
		if j.Kind == kind && (j.ID == ref || j.Code == ref) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memRepo) activeLocked(ref models.JobRef) *models.TrackingSession {
	for _, s := range r.sessions {
		if s.IsActive && s.JobKind == ref.Kind && s.JobID == ref.ID {
			return s
		}
	}
	return nil
}

func (r *memRepo) FindActiveSession(ctx context.Context, ref models.JobRef) (*models.TrackingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.activeLocked(ref); s != nil {
		return cloneSession(s), nil
	}
	return nil, models.ErrNotFound
}

func (r *memRepo) CreateSession(ctx context.Context, s *models.TrackingSession) (*models.TrackingSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.activeLocked(models.JobRef{Kind: s.JobKind, ID: s.JobID}); existing != nil {
		return cloneSession(existing), false, nil
	}
	r.sessions[s.ID] = cloneSession(s)
	r.order = append(r.order, s.ID)
	return cloneSession(s), true, nil
}

func (r *memRepo) GetSession(ctx context.Context, id string) (*models.TrackingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *memRepo) UpdateSession(ctx context.Context, id string, fn func(s *models.TrackingSession) error) (*models.TrackingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	work := cloneSession(s)
	if err := fn(work); err != nil {
		return nil, err
	}
	r.sessions[id] = work
	return cloneSession(work), nil
}

func (r *memRepo) ProjectJobStage(ctx context.Context, upd pgcrew.StageUpdate) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[upd.Ref]
	if !ok {
		return nil, models.ErrNotFound
	}
	j.Stage = upd.Stage
	switch {
	case upd.Complete && (j.Status == models.JobStatusScheduled || j.Status == models.JobStatusConfirmed || j.Status == models.JobStatusInProgress):
		j.Status = models.JobStatusCompleted
	case upd.PromoteInProgress && (j.Status == models.JobStatusScheduled || j.Status == models.JobStatusConfirmed):
		j.Status = models.JobStatusInProgress
	}
	cp := *j
	return &cp, nil
}

func (r *memRepo) LatestSession(ctx context.Context, ref models.JobRef) (*models.TrackingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.activeLocked(ref); s != nil {
		return cloneSession(s), nil
	}
	for i := len(r.order) - 1; i >= 0; i-- {
		s := r.sessions[r.order[i]]
		if s.JobKind == ref.Kind && s.JobID == ref.ID {
			return cloneSession(s), nil
		}
	}
	return nil, models.ErrNotFound
}
