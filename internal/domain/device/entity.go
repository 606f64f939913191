package device

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSlotCount = 4
	DefaultTimezone  = "UTC"
	DefaultBattery   = 100
)

// Device is a pill dispenser, addressed by hardware through DeviceID.
type Device struct {
	ID              uuid.UUID
	DeviceID        string
	Name            string
	Timezone        string
	SlotCount       int
	LastHeartbeatAt *time.Time
	LastStatus      *string
	BatteryLevel    *int
	WifiStrength    *int
	WifiConnected   bool
	FirmwareVersion *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOnline reports whether the last heartbeat is within threshold of now.
func (d *Device) IsOnline(now time.Time, threshold time.Duration) bool {
	if d.LastHeartbeatAt == nil {
		return false
	}
	return now.Sub(*d.LastHeartbeatAt) <= threshold
}

// HasSlot reports whether slot is a valid 1-based slot on this device.
func (d *Device) HasSlot(slot int) bool {
	return slot >= 1 && slot <= d.SlotCount
}

// Telemetry is a heartbeat snapshot. Nil fields leave stored values untouched.
type Telemetry struct {
	ReceivedAt      time.Time
	Status          *string
	BatteryLevel    *int
	WifiStrength    *int
	WifiConnected   *bool
	FirmwareVersion *string
}
