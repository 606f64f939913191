package dose

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Log, error)
	GetByNaturalKey(ctx context.Context, planID uuid.UUID, scheduledAt time.Time) (*Log, error)
	// CreateIfAbsent inserts l unless its natural key exists, then returns the stored row.
	CreateIfAbsent(ctx context.Context, l *Log) (*Log, error)
	// CreateMissing bulk-inserts logs, skipping natural-key conflicts.
	CreateMissing(ctx context.Context, logs []*Log) error
	// UpdateStatus writes l's status fields if the stored status is still expected.
	UpdateStatus(ctx context.Context, l *Log, expected Status) error

	ResetStaleDispensed(ctx context.Context, deviceID uuid.UUID, dispensedBefore time.Time) (int64, error)
	MarkOverdueMissed(ctx context.Context, deviceID uuid.UUID, scheduledBefore time.Time, reason string) ([]*Log, error)

	List(ctx context.Context, filter Filter) ([]*Log, error)
}
