package patient

import (
	"time"

	"github.com/google/uuid"
)

type IllnessStatus string

const (
	IllnessOngoing      IllnessStatus = "ongoing"
	IllnessUnderControl IllnessStatus = "under_control"
	IllnessResolved     IllnessStatus = "resolved"
)

type Illness struct {
	Name        string        `json:"name"`
	DiagnosedAt *time.Time    `json:"diagnosedAt,omitempty"`
	Status      IllnessStatus `json:"status"`
	Notes       string        `json:"notes,omitempty"`
}

type MedicalProfile struct {
	Illnesses  []Illness `json:"illnesses"`
	Allergies  []string  `json:"allergies"`
	OtherNotes string    `json:"otherNotes"`
}

// PrimaryDiagnosis is the first recorded illness, or "" when none.
func (m MedicalProfile) PrimaryDiagnosis() string {
	if len(m.Illnesses) == 0 {
		return ""
	}
	return m.Illnesses[0].Name
}

// CaretakerLink grants a caretaker read access once the patient approves it.
type CaretakerLink struct {
	CaretakerID  uuid.UUID
	Relationship string
	Approved     bool
	RequestedAt  time.Time
	ApprovedAt   *time.Time
}

type Patient struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	DeviceID       *uuid.UUID
	MedicalProfile MedicalProfile
	Caretakers     []CaretakerLink
	DoctorIDs      []uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p *Patient) ApprovedCaretakers() []CaretakerLink {
	var out []CaretakerLink
	for _, link := range p.Caretakers {
		if link.Approved {
			out = append(out, link)
		}
	}
	return out
}

func (p *Patient) HasDoctor(doctorID uuid.UUID) bool {
	for _, id := range p.DoctorIDs {
		if id == doctorID {
			return true
		}
	}
	return false
}
