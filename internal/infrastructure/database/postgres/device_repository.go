package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medication-adherence-monitor/internal/domain/device"
	"medication-adherence-monitor/internal/infrastructure/database/postgres/models"
)

// DeviceRepository implements device.Repository
type DeviceRepository struct {
	db *DB
}

func NewDeviceRepository(db *DB) device.Repository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) Create(ctx context.Context, d *device.Device) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	if d.SlotCount == 0 {
		d.SlotCount = device.DefaultSlotCount
	}
	if d.Timezone == "" {
		d.Timezone = device.DefaultTimezone
	}

	dbModel := toDeviceModel(d)
	if err := r.db.conn(ctx).Create(dbModel).Error; err != nil {
		if isDuplicateKey(err) {
			return device.ErrDeviceAlreadyExists
		}
		return fmt.Errorf("failed to create device: %w", err)
	}

	d.CreatedAt = dbModel.CreatedAt
	d.UpdatedAt = dbModel.UpdatedAt
	return nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	var dbModel models.DeviceModel
	err := r.db.conn(ctx).Where("id = ?", id).First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, device.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return toDeviceEntity(&dbModel), nil
}

func (r *DeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*device.Device, error) {
	var dbModel models.DeviceModel
	err := r.db.conn(ctx).Where("device_id = ?", deviceID).First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, device.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return toDeviceEntity(&dbModel), nil
}

func (r *DeviceRepository) UpdateTelemetry(ctx context.Context, deviceID string, t device.Telemetry) error {
	updates := map[string]interface{}{
		"last_heartbeat_at": t.ReceivedAt,
		"updated_at":        time.Now(),
	}
	if t.Status != nil {
		updates["last_status"] = *t.Status
	}
	if t.BatteryLevel != nil {
		updates["battery_level"] = *t.BatteryLevel
	}
	if t.WifiStrength != nil {
		updates["wifi_strength"] = *t.WifiStrength
	}
	if t.WifiConnected != nil {
		updates["wifi_connected"] = *t.WifiConnected
	}
	if t.FirmwareVersion != nil {
		updates["firmware_version"] = *t.FirmwareVersion
	}

	result := r.db.conn(ctx).Model(&models.DeviceModel{}).
		Where("device_id = ?", deviceID).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update device telemetry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return device.ErrDeviceNotFound
	}

	return nil
}

func (r *DeviceRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.conn(ctx).Model(&models.DeviceModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return count, nil
}

func (r *DeviceRepository) CountOnlineSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.conn(ctx).Model(&models.DeviceModel{}).
		Where("last_heartbeat_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count online devices: %w", err)
	}
	return count, nil
}

func toDeviceModel(d *device.Device) *models.DeviceModel {
	return &models.DeviceModel{
		ID:              d.ID,
		DeviceID:        d.DeviceID,
		Name:            d.Name,
		Timezone:        d.Timezone,
		SlotCount:       d.SlotCount,
		LastHeartbeatAt: d.LastHeartbeatAt,
		LastStatus:      d.LastStatus,
		BatteryLevel:    d.BatteryLevel,
		WifiStrength:    d.WifiStrength,
		WifiConnected:   d.WifiConnected,
		FirmwareVersion: d.FirmwareVersion,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func toDeviceEntity(m *models.DeviceModel) *device.Device {
	return &device.Device{
		ID:              m.ID,
		DeviceID:        m.DeviceID,
		Name:            m.Name,
		Timezone:        m.Timezone,
		SlotCount:       m.SlotCount,
		LastHeartbeatAt: m.LastHeartbeatAt,
		LastStatus:      m.LastStatus,
		BatteryLevel:    m.BatteryLevel,
		WifiStrength:    m.WifiStrength,
		WifiConnected:   m.WifiConnected,
		FirmwareVersion: m.FirmwareVersion,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
