package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	GetByDeviceID(ctx context.Context, deviceID uuid.UUID) (*Patient, error)
	// Update persists the medical profile and device link.
	Update(ctx context.Context, p *Patient) error

	AddCaretaker(ctx context.Context, patientID uuid.UUID, link CaretakerLink) error
	ApproveCaretaker(ctx context.Context, patientID, caretakerID uuid.UUID, at time.Time) error
	AddDoctor(ctx context.Context, patientID, doctorID uuid.UUID) error

	ListByApprovedCaretaker(ctx context.Context, caretakerID uuid.UUID) ([]*Patient, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Patient, error)
	Count(ctx context.Context) (int64, error)
}
