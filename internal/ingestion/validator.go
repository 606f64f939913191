package ingestion

import (
	"fmt"

	"medication-adherence-monitor/internal/domain/dose"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %s", e.Field, e.Message)
}

var deviceStatuses = map[string]struct{}{
	"online":      {},
	"offline":     {},
	"error":       {},
	"maintenance": {},
}

var doseEvents = map[dose.Status]struct{}{
	dose.StatusDispensed: {},
	dose.StatusTaken:     {},
	dose.StatusSkipped:   {},
	dose.StatusError:     {},
}

// ValidateHeartbeat validates a heartbeat message
func ValidateHeartbeat(msg *HeartbeatMessage) error {
	if msg.DeviceID == "" {
		return &ValidationError{Field: "device_id", Message: "device_id is required"}
	}

	if msg.Status != nil {
		if _, ok := deviceStatuses[*msg.Status]; !ok {
			return &ValidationError{Field: "status", Message: "status must be one of online, offline, error, maintenance"}
		}
	}

	if msg.BatteryLevel != nil {
		if *msg.BatteryLevel < 0 || *msg.BatteryLevel > 100 {
			return &ValidationError{Field: "battery_level", Message: "battery_level must be between 0 and 100"}
		}
	}

	// RSSI in dBm
	if msg.WifiStrength != nil {
		if *msg.WifiStrength < -150 || *msg.WifiStrength > 0 {
			return &ValidationError{Field: "wifi_strength", Message: "wifi_strength must be between -150 and 0"}
		}
	}

	return nil
}

// ValidateDoseEvent validates a dose event message
func ValidateDoseEvent(msg *DoseEventMessage) error {
	if msg.DeviceID == "" {
		return &ValidationError{Field: "device_id", Message: "device_id is required"}
	}
	if msg.DoseID == "" {
		return &ValidationError{Field: "dose_id", Message: "dose_id is required"}
	}
	if _, ok := doseEvents[dose.Status(msg.Status)]; !ok {
		return &ValidationError{Field: "status", Message: "status must be one of dispensed, taken, skipped, error"}
	}
	return nil
}
