package crewapi

import (
	"net/http"
	"time"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/BearBump/CrewTrack/internal/services/checkpoints"
	"github.com/go-chi/chi/v5"
)

type sessionResponse struct {
	ID            string              `json:"id"`
	JobID         string              `json:"jobId"`
	JobType       models.JobKind      `json:"jobType"`
	TeamID        string              `json:"teamId"`
	CrewMemberID  string              `json:"crewMemberId"`
	Status        string              `json:"status"`
	IsActive      bool                `json:"isActive"`
	StartedAt     time.Time           `json:"startedAt"`
	CompletedAt   *time.Time          `json:"completedAt"`
	LastLocation  *models.Location    `json:"lastLocation"`
	Checkpoints   []models.Checkpoint `json:"checkpoints"`
	AlreadyActive bool                `json:"alreadyActive,omitempty"`
}

func toSessionResponse(s *models.TrackingSession) sessionResponse {
	cps := s.Checkpoints
	if cps == nil {
		cps = []models.Checkpoint{}
	}
	return sessionResponse{
		ID:           s.ID,
		JobID:        s.JobID,
		JobType:      s.JobKind,
		TeamID:       s.TeamID,
		CrewMemberID: s.CrewMemberID,
		Status:       s.Status,
		IsActive:     s.IsActive,
		StartedAt:    s.StartedAt,
		CompletedAt:  s.CompletedAt,
		LastLocation: s.LastLocation,
		Checkpoints:  cps,
	}
}

type startSessionRequest struct {
	JobRef  string `json:"jobRef" validate:"required,max=128"`
	JobType string `json:"jobType" validate:"required,oneof=move delivery"`
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	res, err := a.engine.StartSession(r.Context(), checkpoints.StartInput{
		JobRef:       req.JobRef,
		Kind:         models.JobKind(req.JobType),
		TeamID:       claims.TeamID,
		CrewMemberID: claims.CrewMemberID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := toSessionResponse(res.Session)
	out.AlreadyActive = res.AlreadyActive
	status := http.StatusCreated
	if res.AlreadyActive {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	s, err := a.engine.EndSession(r.Context(), chi.URLParam(r, "id"), claims.TeamID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

type checkpointRequest struct {
	SessionID string   `json:"sessionId" validate:"required"`
	Status    string   `json:"status" validate:"required"`
	Note      *string  `json:"note" validate:"omitempty,max=1000"`
	Lat       *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng       *float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
}

type checkpointResponse struct {
	Checkpoint models.Checkpoint `json:"checkpoint"`
	Session    sessionResponse   `json:"session"`
}

func (a *API) advance(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	cp, s, err := a.engine.Advance(r.Context(), checkpoints.AdvanceInput{
		SessionID: req.SessionID,
		TeamID:    claims.TeamID,
		Status:    req.Status,
		Note:      req.Note,
		Lat:       req.Lat,
		Lng:       req.Lng,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkpointResponse{Checkpoint: *cp, Session: toSessionResponse(s)})
}

type locationRequest struct {
	SessionID *string    `json:"sessionId"`
	Lat       *float64   `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng       *float64   `json:"lng" validate:"required,gte=-180,lte=180"`
	Accuracy  float64    `json:"accuracy" validate:"gte=0"`
	Speed     *float64   `json:"speed"`
	Heading   *float64   `json:"heading"`
	Timestamp *time.Time `json:"timestamp"`
}

type locationResponse struct {
	Accepted bool `json:"accepted"`
	Idle     bool `json:"idle"`
}

func (a *API) location(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	claims, _ := ClaimsFrom(r.Context())

	ping := models.LocationPing{
		SessionID: req.SessionID,
		TeamID:    claims.TeamID,
		Lat:       *req.Lat,
		Lng:       *req.Lng,
		Accuracy:  req.Accuracy,
		Speed:     req.Speed,
		Heading:   req.Heading,
	}
	if req.Timestamp != nil {
		ping.Timestamp = req.Timestamp.UTC()
	}
	res, err := a.ingestor.Ingest(r.Context(), ping)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locationResponse{Accepted: res.Accepted, Idle: res.Idle})
}
