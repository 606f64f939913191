package models

import (
	"time"

	"github.com/google/uuid"
)

type MedicationPlanModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PatientID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	DeviceID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	Name            string     `gorm:"type:varchar(255);not null"`
	Strength        string     `gorm:"type:varchar(100)"`
	Form            string     `gorm:"type:varchar(32);not null;default:'tablet'"`
	SlotIndex       int        `gorm:"type:integer;not null"`
	DosagePerIntake float64    `gorm:"type:numeric(6,2);not null"`
	Times           []string   `gorm:"type:jsonb;serializer:json"`
	DaysOfWeek      []int      `gorm:"type:jsonb;serializer:json"`
	StartDate       time.Time  `gorm:"type:timestamptz;not null"`
	EndDate         *time.Time `gorm:"type:timestamptz"`
	Instructions    *string    `gorm:"type:text"`
	Active          bool       `gorm:"not null;default:true;index"`
	StockTotal      int        `gorm:"column:stock_total_loaded;not null;default:0"`
	StockRemaining  int        `gorm:"column:stock_remaining;not null;default:0"`
	LastRefilledAt  *time.Time `gorm:"type:timestamptz"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (MedicationPlanModel) TableName() string {
	return "medication_plans"
}
