package dose

import (
	"time"

	"github.com/google/uuid"

	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
)

// ScheduleItem is one row of a patient's day: a stored log, a projected
// occurrence with no log yet, or an unscheduled plan.
type ScheduleItem struct {
	ID                string            `json:"id"`
	MedicationPlanID  uuid.UUID         `json:"medicationPlanId"`
	MedicineName      string            `json:"medicineName"`
	Strength          string            `json:"medicationStrength,omitempty"`
	Form              medication.Form   `json:"medicationForm"`
	Dosage            string            `json:"dosage"`
	SlotIndex         int               `json:"slotIndex"`
	ScheduledAt       time.Time         `json:"scheduledAt"`
	Status            domainDose.Status `json:"status"`
	DispensedAt       *time.Time        `json:"dispensedAt,omitempty"`
	TakenAt           *time.Time        `json:"takenAt"`
	Persisted         bool              `json:"persisted"`
	IsPendingMedicine bool              `json:"isPendingMedicine,omitempty"`
}

// DoseResponse is a stored dose log.
type DoseResponse struct {
	ID               uuid.UUID         `json:"id"`
	PatientID        uuid.UUID         `json:"patientId"`
	DeviceID         uuid.UUID         `json:"deviceId"`
	MedicationPlanID uuid.UUID         `json:"medicationPlanId"`
	SlotIndex        int               `json:"slotIndex"`
	ScheduledAt      time.Time         `json:"scheduledAt"`
	Status           domainDose.Status `json:"status"`
	DispensedAt      *time.Time        `json:"dispensedAt"`
	TakenAt          *time.Time        `json:"takenAt"`
	MissedReason     *string           `json:"missedReason,omitempty"`
}

// DeviceDose is the compact view served to dispensers.
type DeviceDose struct {
	ID            uuid.UUID         `json:"id"`
	MedicineName  string            `json:"medicineName"`
	Dosage        string            `json:"dosage"`
	ScheduledTime string            `json:"scheduledTime"`
	ScheduledAt   time.Time         `json:"scheduledAt"`
	Status        domainDose.Status `json:"status"`
	Slot          int               `json:"slot"`
}

func ToDoseResponse(l *domainDose.Log) *DoseResponse {
	return &DoseResponse{
		ID:               l.ID,
		PatientID:        l.PatientID,
		DeviceID:         l.DeviceID,
		MedicationPlanID: l.MedicationPlanID,
		SlotIndex:        l.SlotIndex,
		ScheduledAt:      l.ScheduledAt,
		Status:           l.Status,
		DispensedAt:      l.DispensedAt,
		TakenAt:          l.TakenAt,
		MissedReason:     l.MissedReason,
	}
}

// ToDeviceDose renders l for hardware. plan may be nil when it was removed.
// The slot is echoed as stored.
func ToDeviceDose(l *domainDose.Log, plan *medication.Plan, loc *time.Location) DeviceDose {
	name, dosage := "Unknown", ""
	if plan != nil {
		name = plan.Name
		dosage = plan.DosageLabel()
	}
	return DeviceDose{
		ID:            l.ID,
		MedicineName:  name,
		Dosage:        dosage,
		ScheduledTime: l.ScheduledAt.In(loc).Format("15:04"),
		ScheduledAt:   l.ScheduledAt,
		Status:        l.Status,
		Slot:          l.SlotIndex,
	}
}
