package device

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines device persistence operations
type Repository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	UpdateTelemetry(ctx context.Context, deviceID string, t Telemetry) error
	Count(ctx context.Context) (int64, error)
	CountOnlineSince(ctx context.Context, since time.Time) (int64, error)
}
