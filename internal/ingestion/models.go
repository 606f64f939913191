package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgmqtt "medication-adherence-monitor/pkg/mqtt"
)

const (
	KindHeartbeat = "heartbeat"
	KindDose      = "dose"
)

// HeartbeatMessage is published on devices/<deviceId>/heartbeat.
type HeartbeatMessage struct {
	DeviceID        string    `json:"device_id"`
	Timestamp       time.Time `json:"timestamp"`
	Status          *string   `json:"status"`
	BatteryLevel    *int      `json:"battery_level"`
	WifiStrength    *int      `json:"wifi_strength"`
	WifiConnected   *bool     `json:"wifi_connected"`
	FirmwareVersion *string   `json:"firmware_version"`
}

// DoseEventMessage is published on devices/<deviceId>/dose when the
// dispenser drops, confirms or fails a dose. DoseID is a stored dose id or
// a "<planId>_<epochMillis>" reference.
type DoseEventMessage struct {
	DeviceID  string    `json:"device_id"`
	DoseID    string    `json:"dose_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseHeartbeat decodes a heartbeat payload. The device id comes from the
// topic when the payload leaves it out and must match it otherwise.
func ParseHeartbeat(topic string, payload []byte) (*HeartbeatMessage, error) {
	var msg HeartbeatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	id, err := deviceFromTopic(topic, msg.DeviceID)
	if err != nil {
		return nil, err
	}
	msg.DeviceID = id
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return &msg, nil
}

// ParseDoseEvent decodes a dose event payload, resolving the device id the
// same way as ParseHeartbeat.
func ParseDoseEvent(topic string, payload []byte) (*DoseEventMessage, error) {
	var msg DoseEventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	id, err := deviceFromTopic(topic, msg.DeviceID)
	if err != nil {
		return nil, err
	}
	msg.DeviceID = id
	msg.Status = strings.ToLower(strings.TrimSpace(msg.Status))
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return &msg, nil
}

func deviceFromTopic(topic, fromPayload string) (string, error) {
	fromTopic := pkgmqtt.TopicSegment(topic, 1)
	fromPayload = strings.TrimSpace(fromPayload)
	switch {
	case fromPayload == "":
		return fromTopic, nil
	case fromTopic != "" && fromTopic != "+" && fromTopic != fromPayload:
		return "", &ValidationError{Field: "device_id", Message: fmt.Sprintf("payload device %q does not match topic device %q", fromPayload, fromTopic)}
	default:
		return fromPayload, nil
	}
}
