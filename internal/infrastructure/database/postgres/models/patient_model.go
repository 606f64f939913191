package models

import (
	"time"

	"github.com/google/uuid"
)

type IllnessRecord struct {
	Name        string     `json:"name"`
	DiagnosedAt *time.Time `json:"diagnosedAt,omitempty"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
}

// PatientModel keeps list-shaped profile fields as jsonb.
type PatientModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	DeviceID   *uuid.UUID      `gorm:"type:uuid;index"`
	Illnesses  []IllnessRecord `gorm:"type:jsonb;serializer:json"`
	Allergies  []string        `gorm:"type:jsonb;serializer:json"`
	OtherNotes string          `gorm:"type:text"`
	CreatedAt  time.Time       `gorm:"not null"`
	UpdatedAt  time.Time       `gorm:"not null"`

	Caretakers []CaretakerLinkModel `gorm:"foreignKey:PatientID"`
	Doctors    []PatientDoctorModel `gorm:"foreignKey:PatientID"`
}

func (PatientModel) TableName() string {
	return "patients"
}

type CaretakerLinkModel struct {
	PatientID    uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CaretakerID  uuid.UUID  `gorm:"type:uuid;primaryKey;index"`
	Relationship string     `gorm:"type:varchar(100)"`
	Approved     bool       `gorm:"not null;default:false"`
	RequestedAt  time.Time  `gorm:"not null"`
	ApprovedAt   *time.Time `gorm:"type:timestamptz"`
}

func (CaretakerLinkModel) TableName() string {
	return "patient_caretakers"
}

type PatientDoctorModel struct {
	PatientID uuid.UUID `gorm:"type:uuid;primaryKey"`
	DoctorID  uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (PatientDoctorModel) TableName() string {
	return "patient_doctors"
}
