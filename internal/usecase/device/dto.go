package device

// HeartbeatRequest is posted by dispensers over HTTP and published on the
// heartbeat MQTT topic. Omitted fields keep their stored value.
type HeartbeatRequest struct {
	DeviceID        string  `json:"deviceId" validate:"required,max=100"`
	Status          *string `json:"status" validate:"omitempty,oneof=online offline error maintenance"`
	BatteryLevel    *int    `json:"batteryLevel" validate:"omitempty,min=0,max=100"`
	WifiStrength    *int    `json:"wifiStrength" validate:"omitempty,min=-150,max=0"`
	WifiConnected   *bool   `json:"wifiConnected"`
	FirmwareVersion *string `json:"firmwareVersion" validate:"omitempty,max=50"`
}

type HeartbeatResponse struct {
	OK bool `json:"ok"`
}
