package device

import (
	"context"

	"go.uber.org/zap"

	"medication-adherence-monitor/internal/clock"
	domainDevice "medication-adherence-monitor/internal/domain/device"
	"medication-adherence-monitor/internal/logger"
	appErrors "medication-adherence-monitor/pkg/errors"
	"medication-adherence-monitor/pkg/utils"
)

const StatusOnline = "online"

// Service records dispenser telemetry.
type Service struct {
	deviceRepo domainDevice.Repository
	clock      clock.Clock
}

func NewService(deviceRepo domainDevice.Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		deviceRepo: deviceRepo,
		clock:      clk,
	}
}

// Heartbeat stamps lastHeartbeatAt and stores whatever telemetry the device
// sent. Status defaults to online.
func (s *Service) Heartbeat(ctx context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
	req.DeviceID = utils.SanitizeString(req.DeviceID)
	req.FirmwareVersion = utils.SanitizeStringPtr(req.FirmwareVersion)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}

	status := StatusOnline
	if req.Status != nil {
		status = *req.Status
	}

	t := domainDevice.Telemetry{
		ReceivedAt:      s.clock.Now(),
		Status:          &status,
		BatteryLevel:    req.BatteryLevel,
		WifiStrength:    req.WifiStrength,
		WifiConnected:   req.WifiConnected,
		FirmwareVersion: req.FirmwareVersion,
	}
	if err := s.deviceRepo.UpdateTelemetry(ctx, req.DeviceID, t); err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("device_id", req.DeviceID),
		zap.String("status", status),
		zap.String("event", "device_heartbeat"),
	}
	if req.BatteryLevel != nil {
		fields = append(fields, zap.Int("battery_level", *req.BatteryLevel))
	}
	logger.Debug("Device heartbeat", fields...)

	return &HeartbeatResponse{OK: true}, nil
}
