package models

import (
	"time"

	"github.com/google/uuid"
)

// DoseLogModel is unique on (medication_plan_id, scheduled_at).
type DoseLogModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PatientID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	DeviceID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_dose_logs_device_scheduled,priority:1"`
	MedicationPlanID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_dose_logs_plan_scheduled,priority:1"`
	SlotIndex        int        `gorm:"type:integer;not null"`
	ScheduledAt      time.Time  `gorm:"type:timestamptz;not null;uniqueIndex:ux_dose_logs_plan_scheduled,priority:2;index:idx_dose_logs_device_scheduled,priority:2"`
	Status           string     `gorm:"type:varchar(20);not null;default:'pending';index"`
	DispensedAt      *time.Time `gorm:"type:timestamptz"`
	TakenAt          *time.Time `gorm:"type:timestamptz"`
	MissedReason     *string    `gorm:"type:text"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

func (DoseLogModel) TableName() string {
	return "dose_logs"
}
