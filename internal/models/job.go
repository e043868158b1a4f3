package models

import (
	"fmt"
	"slices"
	"time"
)

type JobKind string

const (
	JobKindMove     JobKind = "move"
	JobKindDelivery JobKind = "delivery"
)

// Статусы чекпоинтов. Общие для обоих потоков: not_started, completed.
const (
	StatusNotStarted = "not_started"
	StatusCompleted  = "completed"
	StatusIdle       = "idle"

	StatusEnRouteToPickup      = "en_route_to_pickup"
	StatusArrivedAtPickup      = "arrived_at_pickup"
	StatusLoading              = "loading"
	StatusEnRouteToDestination = "en_route_to_destination"
	StatusArrivedAtDestination = "arrived_at_destination"
	StatusUnloading            = "unloading"

	StatusEnRoute    = "en_route"
	StatusArrived    = "arrived"
	StatusDelivering = "delivering"
)

// Coarse job lifecycle.
const (
	JobStatusScheduled  = "scheduled"
	JobStatusConfirmed  = "confirmed"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
)

// KindSpec holds the per-kind constants: status flow and storage table.
type KindSpec struct {
	Kind  JobKind
	Flow  []string
	Table string
	// CodeColumn is the human-readable job code column in Table.
	CodeColumn string
	EnRoute    []string
}

var kindSpecs = map[JobKind]KindSpec{
	JobKindMove: {
		Kind: JobKindMove,
		Flow: []string{
			StatusNotStarted,
			StatusEnRouteToPickup,
			StatusArrivedAtPickup,
			StatusLoading,
			StatusEnRouteToDestination,
			StatusArrivedAtDestination,
			StatusUnloading,
			StatusCompleted,
		},
		Table:      "moves",
		CodeColumn: "move_code",
		EnRoute:    []string{StatusEnRouteToPickup, StatusEnRouteToDestination},
	},
	JobKindDelivery: {
		Kind: JobKindDelivery,
		Flow: []string{
			StatusNotStarted,
			StatusEnRoute,
			StatusArrived,
			StatusDelivering,
			StatusCompleted,
		},
		Table:      "deliveries",
		CodeColumn: "delivery_number",
		EnRoute:    []string{StatusEnRoute},
	},
}

func ParseJobKind(s string) (JobKind, error) {
	k := JobKind(s)
	if _, ok := kindSpecs[k]; !ok {
		return "", &ValidationError{Field: "jobType", Reason: fmt.Sprintf("unknown job type %q", s)}
	}
	return k, nil
}

func (k JobKind) Spec() KindSpec {
	return kindSpecs[k]
}

func (k JobKind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// FirstStatus is the state a freshly started session is put in.
func (k JobKind) FirstStatus() string {
	return kindSpecs[k].Flow[1]
}

func (k JobKind) Terminal() string {
	return StatusCompleted
}

func (k JobKind) IsTerminal(status string) bool {
	return status == StatusCompleted
}

func (k JobKind) IsEnRoute(status string) bool {
	return slices.Contains(kindSpecs[k].EnRoute, status)
}

// KnowsStatus reports whether status belongs to the kind's flow.
func (k JobKind) KnowsStatus(status string) bool {
	return slices.Contains(kindSpecs[k].Flow, status)
}

// StepIndex returns the position of status in the flow or -1.
func (k JobKind) StepIndex(status string) int {
	return slices.Index(kindSpecs[k].Flow, status)
}

// JobRef is Move(id) | Delivery(id).
type JobRef struct {
	Kind JobKind
	ID   string
}

func MoveRef(id string) JobRef     { return JobRef{Kind: JobKindMove, ID: id} }
func DeliveryRef(id string) JobRef { return JobRef{Kind: JobKindDelivery, ID: id} }

func (r JobRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

type Job struct {
	ID          string
	Kind        JobKind
	Code        string
	TeamID      *string
	Status      string
	Stage       *string
	ClientPhone *string
	UpdatedAt   time.Time
}

func (j *Job) Ref() JobRef {
	return JobRef{Kind: j.Kind, ID: j.ID}
}

func (j *Job) AssignedTo(teamID string) bool {
	return j.TeamID != nil && *j.TeamID == teamID
}
