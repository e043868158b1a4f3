package messages

import "time"

type CheckpointRecorded struct {
	SessionID    string `json:"session_id"`
	JobKind      string `json:"job_kind"`
	JobID        string `json:"job_id"`
	JobCode      string `json:"job_code,omitempty"`
	TeamID       string `json:"team_id"`
	CrewMemberID string `json:"crew_member_id,omitempty"`

	Status    string    `json:"status"`
	Note      *string   `json:"note,omitempty"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	Synthetic bool      `json:"synthetic,omitempty"`
	At        time.Time `json:"at"`

	// ClientPhone is set when the client should get an SMS with the link.
	ClientPhone *string `json:"client_phone,omitempty"`
}
