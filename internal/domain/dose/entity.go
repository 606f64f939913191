package dose

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDispensed Status = "dispensed"
	StatusTaken     Status = "taken"
	StatusMissed    Status = "missed"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusTaken || s == StatusMissed || s == StatusSkipped
}

// CountsAsMissed reports whether s is a resolved non-taken outcome.
func (s Status) CountsAsMissed() bool {
	return s == StatusMissed || s == StatusSkipped
}

// Log is one concrete occurrence of a plan's schedule. (MedicationPlanID,
// ScheduledAt) is its natural key.
type Log struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	DeviceID         uuid.UUID
	MedicationPlanID uuid.UUID
	SlotIndex        int
	ScheduledAt      time.Time
	Status           Status
	DispensedAt      *time.Time
	TakenAt          *time.Time
	MissedReason     *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Key returns the natural key used to match logs against projections.
func (l *Log) Key() Key {
	return NewKey(l.MedicationPlanID, l.ScheduledAt)
}

type Key struct {
	PlanID  uuid.UUID
	EpochMs int64
}

func NewKey(planID uuid.UUID, scheduledAt time.Time) Key {
	return Key{PlanID: planID, EpochMs: scheduledAt.UnixMilli()}
}

// Filter narrows List queries. Zero values are ignored.
type Filter struct {
	PatientIDs []uuid.UUID
	DeviceID   *uuid.UUID
	PlanID     *uuid.UUID
	Statuses   []Status
	// From is inclusive, After exclusive, Before exclusive and Until inclusive.
	From   *time.Time
	After  *time.Time
	Before *time.Time
	Until  *time.Time
	Limit  int
	Desc   bool
}

// Matches applies f to a single log, mirroring the storage query.
func (f Filter) Matches(l *Log) bool {
	if len(f.PatientIDs) > 0 && !containsID(f.PatientIDs, l.PatientID) {
		return false
	}
	if f.DeviceID != nil && *f.DeviceID != l.DeviceID {
		return false
	}
	if f.PlanID != nil && *f.PlanID != l.MedicationPlanID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, l.Status) {
		return false
	}
	at := l.ScheduledAt
	if f.From != nil && at.Before(*f.From) {
		return false
	}
	if f.After != nil && !at.After(*f.After) {
		return false
	}
	if f.Before != nil && !at.Before(*f.Before) {
		return false
	}
	if f.Until != nil && at.After(*f.Until) {
		return false
	}
	return true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsStatus(statuses []Status, s Status) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
