package medication

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	Update(ctx context.Context, p *Plan) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*Plan, error)
	ListByDevice(ctx context.Context, deviceID uuid.UUID, activeOnly bool) ([]*Plan, error)
	// FindActiveBySlot returns ErrPlanNotFound when the slot is free.
	FindActiveBySlot(ctx context.Context, patientID uuid.UUID, slotIndex int) (*Plan, error)
	ListLowStock(ctx context.Context, threshold int) ([]*Plan, error)
}
