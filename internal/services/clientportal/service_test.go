package clientportal

import (
	"context"
	"strings"
	"testing"

	"github.com/BearBump/CrewTrack/internal/auth/codec"
	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/BearBump/CrewTrack/internal/services/trackinglink"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	jobs []*models.Job
}

func (f *fakeJobs) ResolveJob(ctx context.Context, kind models.JobKind, ref string) (*models.Job, error) {
	for _, j := range f.jobs {
		if j.Kind == kind && (j.ID == ref || j.Code == ref) {
			return j, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeJobs) TrackingView(ctx context.Context, job *models.Job) (*models.TrackingView, error) {
	return &models.TrackingView{JobKind: job.Kind, JobCode: job.Code, JobStatus: job.Status}, nil
}

type fakeRepo struct {
	messages []*models.ClientMessage
	changes  []*models.ChangeRequest
}

func (r *fakeRepo) CreateClientMessage(ctx context.Context, m *models.ClientMessage) error {
	r.messages = append(r.messages, m)
	return nil
}

func (r *fakeRepo) CreateChangeRequest(ctx context.Context, c *models.ChangeRequest) error {
	r.changes = append(r.changes, c)
	return nil
}

func setup(t *testing.T) (*Service, *trackinglink.Issuer, *fakeRepo) {
	t.Helper()
	c, err := codec.New("tracking-link-test-secret", true)
	require.NoError(t, err)
	links := trackinglink.New(c, "https://track.example.com")
	jobs := &fakeJobs{jobs: []*models.Job{
		{ID: "d-1", Kind: models.JobKindDelivery, Code: "PJ1042", Status: models.JobStatusScheduled},
		{ID: "m-1", Kind: models.JobKindMove, Code: "MV-7", Status: models.JobStatusCompleted},
	}}
	repo := &fakeRepo{}
	return New(jobs, links, repo), links, repo
}

func TestView(t *testing.T) {
	svc, links, _ := setup(t)
	ctx := context.Background()
	token := links.Sign(models.DeliveryRef("d-1"))

	v, err := svc.View(ctx, "delivery", "PJ1042", token)
	require.NoError(t, err)
	require.Equal(t, "PJ1042", v.JobCode)

	// the job id also resolves
	_, err = svc.View(ctx, "delivery", "d-1", token)
	require.NoError(t, err)
}

func TestView_RejectionsLookAlike(t *testing.T) {
	svc, links, _ := setup(t)
	ctx := context.Background()
	good := links.Sign(models.DeliveryRef("d-1"))

	cases := []struct{ kind, code, token string }{
		{"delivery", "PJ1042", ""},
		{"delivery", "PJ1042", strings.Repeat("0", len(good))},
		{"delivery", "PJ1042", good[:10]},
		{"delivery", "PJ9999", good},
		{"move", "PJ1042", good},
		{"boat", "PJ1042", good},
		// токен другой работы
		{"move", "MV-7", good},
		{"delivery", "PJ1042", links.Sign(models.MoveRef("d-1"))},
	}
	for _, c := range cases {
		_, err := svc.View(ctx, c.kind, c.code, c.token)
		require.ErrorIs(t, err, models.ErrNotFound, "%+v", c)
	}
}

func TestPostMessage(t *testing.T) {
	svc, links, repo := setup(t)
	ctx := context.Background()
	token := links.Sign(models.DeliveryRef("d-1"))

	m, err := svc.PostMessage(ctx, "delivery", "PJ1042", token, "  leave at side door ")
	require.NoError(t, err)
	require.Equal(t, "leave at side door", m.Body)
	require.Equal(t, "d-1", m.JobID)
	require.Len(t, repo.messages, 1)

	_, err = svc.PostMessage(ctx, "delivery", "PJ1042", token, "   ")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.PostMessage(ctx, "delivery", "PJ1042", "bad", "hi")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Len(t, repo.messages, 1)
}

func TestRequestChange(t *testing.T) {
	svc, links, repo := setup(t)
	ctx := context.Background()

	r, err := svc.RequestChange(ctx, "delivery", "PJ1042", links.Sign(models.DeliveryRef("d-1")), "reschedule", "next friday")
	require.NoError(t, err)
	require.Equal(t, "reschedule", r.RequestType)
	require.Len(t, repo.changes, 1)

	_, err = svc.RequestChange(ctx, "delivery", "PJ1042", links.Sign(models.DeliveryRef("d-1")), "teleport", "")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.RequestChange(ctx, "move", "MV-7", links.Sign(models.MoveRef("m-1")), "reschedule", "")
	require.ErrorIs(t, err, models.ErrValidation)
	require.Len(t, repo.changes, 1)
}
