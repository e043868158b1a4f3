package models

import "time"

type Location struct {
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Accuracy      float64   `json:"accuracy"`
	TimestampedAt time.Time `json:"timestampedAt"`
}

type Checkpoint struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	Note      *string   `json:"note,omitempty"`
}

type TrackingSession struct {
	ID           string
	JobID        string
	JobKind      JobKind
	TeamID       string
	CrewMemberID string
	Status       string
	IsActive     bool
	StartedAt    time.Time
	CompletedAt  *time.Time
	LastLocation *Location
	// IdleAnchor is where the current stationary episode began.
	IdleAnchor  *Location
	Checkpoints []Checkpoint
	UpdatedAt   time.Time
}

func (s *TrackingSession) LastCheckpoint() *Checkpoint {
	if len(s.Checkpoints) == 0 {
		return nil
	}
	return &s.Checkpoints[len(s.Checkpoints)-1]
}

type LocationPing struct {
	SessionID *string
	TeamID    string
	Lat       float64
	Lng       float64
	Accuracy  float64
	Speed     *float64
	Heading   *float64
	Timestamp time.Time
}

// TeamPosition is the team's last known live position, kept between jobs too.
type TeamPosition struct {
	TeamID     string
	Lat        float64
	Lng        float64
	Accuracy   float64
	Speed      *float64
	Heading    *float64
	RecordedAt time.Time
}

// TrackingView is what a client holding a tracking link can see.
type TrackingView struct {
	JobKind      JobKind      `json:"jobType"`
	JobCode      string       `json:"jobCode"`
	JobStatus    string       `json:"jobStatus"`
	Stage        *string      `json:"stage"`
	IsActive     bool         `json:"isActive"`
	LastLocation *Location    `json:"lastLocation"`
	Checkpoints  []Checkpoint `json:"checkpoints"`
}

type ClientMessage struct {
	ID        string
	JobID     string
	JobKind   JobKind
	Body      string
	CreatedAt time.Time
}

type ChangeRequest struct {
	ID          string
	JobID       string
	JobKind     JobKind
	RequestType string
	Details     string
	CreatedAt   time.Time
}
