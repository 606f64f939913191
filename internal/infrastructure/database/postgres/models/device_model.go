package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceModel represents the database model for dispensers.
type DeviceModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	DeviceID        string     `gorm:"type:varchar(128);not null;uniqueIndex"`
	Name            string     `gorm:"type:varchar(255)"`
	Timezone        string     `gorm:"type:varchar(64);not null;default:'UTC'"`
	SlotCount       int        `gorm:"type:integer;not null;default:4"`
	LastHeartbeatAt *time.Time `gorm:"type:timestamptz;index"`
	LastStatus      *string    `gorm:"type:varchar(64)"`
	BatteryLevel    *int       `gorm:"type:integer"`
	WifiStrength    *int       `gorm:"type:integer"`
	WifiConnected   bool       `gorm:"not null;default:false"`
	FirmwareVersion *string    `gorm:"type:varchar(100)"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (DeviceModel) TableName() string {
	return "devices"
}
