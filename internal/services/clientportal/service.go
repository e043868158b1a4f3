// Package clientportal serves the job's client through a tracking link. The
// job id is always resolved from the code in the URL; the link token is then
// checked against that id.
package clientportal

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const maxBodyLen = 2000

var changeRequestTypes = []string{"reschedule", "address_change", "access_notes", "cancel", "other"}

type JobViewer interface {
	ResolveJob(ctx context.Context, kind models.JobKind, ref string) (*models.Job, error)
	TrackingView(ctx context.Context, job *models.Job) (*models.TrackingView, error)
}

type LinkVerifier interface {
	Verify(ref models.JobRef, token string) bool
}

type Repository interface {
	CreateClientMessage(ctx context.Context, m *models.ClientMessage) error
	CreateChangeRequest(ctx context.Context, r *models.ChangeRequest) error
}

type Service struct {
	jobs  JobViewer
	links LinkVerifier
	repo  Repository
	now   func() time.Time
}

func New(jobs JobViewer, links LinkVerifier, repo Repository) *Service {
	return &Service{jobs: jobs, links: links, repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// authorize resolves the job and checks the link token. Unknown kind, unknown
// code and a bad token all come back as ErrNotFound so a caller cannot probe
// for valid job codes.
func (s *Service) authorize(ctx context.Context, kind, code, token string) (*models.Job, error) {
	k, err := models.ParseJobKind(kind)
	if err != nil {
		return nil, models.ErrNotFound
	}
	if code == "" || token == "" {
		return nil, models.ErrNotFound
	}
	job, err := s.jobs.ResolveJob(ctx, k, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if !s.links.Verify(job.Ref(), token) {
		slog.Warn("tracking link rejected", "job", job.Ref().String())
		return nil, models.ErrNotFound
	}
	return job, nil
}

func (s *Service) View(ctx context.Context, kind, code, token string) (*models.TrackingView, error) {
	job, err := s.authorize(ctx, kind, code, token)
	if err != nil {
		return nil, err
	}
	return s.jobs.TrackingView(ctx, job)
}

func (s *Service) PostMessage(ctx context.Context, kind, code, token, body string) (*models.ClientMessage, error) {
	job, err := s.authorize(ctx, kind, code, token)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" || utf8.RuneCountInString(body) > maxBodyLen {
		return nil, &models.ValidationError{Field: "body", Reason: "must be 1-2000 characters"}
	}

	m := &models.ClientMessage{ID: uuid.NewString(), JobID: job.ID, JobKind: job.Kind, Body: body, CreatedAt: s.now()}
	if err := s.repo.CreateClientMessage(ctx, m); err != nil {
		return nil, err
	}
	slog.Info("client message", "job", job.Ref().String(), "message_id", m.ID)
	return m, nil
}

func (s *Service) RequestChange(ctx context.Context, kind, code, token, requestType, details string) (*models.ChangeRequest, error) {
	job, err := s.authorize(ctx, kind, code, token)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(changeRequestTypes, requestType) {
		return nil, &models.ValidationError{Field: "type", Reason: "unknown change request type"}
	}
	details = strings.TrimSpace(details)
	if utf8.RuneCountInString(details) > maxBodyLen {
		return nil, &models.ValidationError{Field: "details", Reason: "too long"}
	}
	if job.Status == models.JobStatusCompleted || job.Status == models.JobStatusCancelled {
		return nil, &models.ValidationError{Field: "type", Reason: "job is already " + job.Status}
	}

	r := &models.ChangeRequest{
		ID: uuid.NewString(), JobID: job.ID, JobKind: job.Kind,
		RequestType: requestType, Details: details, CreatedAt: s.now(),
	}
	if err := s.repo.CreateChangeRequest(ctx, r); err != nil {
		return nil, err
	}
	slog.Info("client change request", "job", job.Ref().String(), "type", requestType)
	return r, nil
}
