package crewapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/go-chi/chi/v5"
)

// TeamData is the crew-side read model: live position, recent pings and
// what clients wrote about the team's jobs.
type TeamData interface {
	GetTeamPosition(ctx context.Context, teamID string) (*models.TeamPosition, error)
	ListLocationHistory(ctx context.Context, teamID string, limit int) ([]*models.LocationPing, error)
	ListClientMessages(ctx context.Context, ref models.JobRef, limit int) ([]*models.ClientMessage, error)
}

type JobResolver interface {
	ResolveJob(ctx context.Context, kind models.JobKind, ref string) (*models.Job, error)
}

// WithTeamData enables the /crew/team and /crew/jobs read endpoints.
func (a *API) WithTeamData(td TeamData, jobs JobResolver) *API {
	a.team = td
	a.jobs = jobs
	return a
}

type positionResponse struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   float64   `json:"accuracy"`
	Speed      *float64  `json:"speed,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

func (a *API) teamPosition(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	p, err := a.team.GetTeamPosition(r.Context(), claims.TeamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Lat: p.Lat, Lng: p.Lng, Accuracy: p.Accuracy, Speed: p.Speed, Heading: p.Heading, RecordedAt: p.RecordedAt,
	})
}

type historyItem struct {
	SessionID *string `json:"sessionId,omitempty"`
	positionResponse
}

func (a *API) teamHistory(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	pings, err := a.team.ListLocationHistory(r.Context(), claims.TeamID, queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]historyItem, 0, len(pings))
	for _, p := range pings {
		out = append(out, historyItem{
			SessionID: p.SessionID,
			positionResponse: positionResponse{
				Lat: p.Lat, Lng: p.Lng, Accuracy: p.Accuracy, Speed: p.Speed, Heading: p.Heading, RecordedAt: p.Timestamp,
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type jobMessage struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// jobMessages lists client messages for a job assigned to the caller's team.
func (a *API) jobMessages(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	kind, err := models.ParseJobKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := a.jobs.ResolveJob(r.Context(), kind, chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !job.AssignedTo(claims.TeamID) {
		writeError(w, r, models.ErrForbidden)
		return
	}

	msgs, err := a.team.ListClientMessages(r.Context(), job.Ref(), queryLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]jobMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, jobMessage{ID: m.ID, Body: m.Body, CreatedAt: m.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// queryLimit reads ?limit=; storage clamps out-of-range values.
func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}
