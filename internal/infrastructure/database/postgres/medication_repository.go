package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/infrastructure/database/postgres/models"
)

// MedicationRepository implements medication.Repository
type MedicationRepository struct {
	db *DB
}

func NewMedicationRepository(db *DB) medication.Repository {
	return &MedicationRepository{db: db}
}

func (r *MedicationRepository) Create(ctx context.Context, p *medication.Plan) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	dbModel := toPlanModel(p)
	if err := r.db.conn(ctx).Create(dbModel).Error; err != nil {
		if isDuplicateKey(err) {
			return medication.ErrSlotOccupied
		}
		return fmt.Errorf("failed to create medication plan: %w", err)
	}

	return nil
}

func (r *MedicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*medication.Plan, error) {
	var dbModel models.MedicationPlanModel
	err := r.db.conn(ctx).Where("id = ?", id).First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, medication.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication plan: %w", err)
	}

	return toPlanEntity(&dbModel), nil
}

func (r *MedicationRepository) Update(ctx context.Context, p *medication.Plan) error {
	p.UpdatedAt = time.Now()

	result := r.db.conn(ctx).Model(&models.MedicationPlanModel{ID: p.ID}).
		Select(
			"name", "strength", "form", "slot_index", "dosage_per_intake",
			"times", "days_of_week", "start_date", "end_date", "instructions",
			"active", "stock_total_loaded", "stock_remaining", "last_refilled_at", "updated_at",
		).
		Updates(toPlanModel(p))

	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return medication.ErrSlotOccupied
		}
		return fmt.Errorf("failed to update medication plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return medication.ErrPlanNotFound
	}

	return nil
}

func (r *MedicationRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*medication.Plan, error) {
	q := r.db.conn(ctx).Where("patient_id = ?", patientID)
	if activeOnly {
		q = q.Where("active = true")
	}
	return r.list(q)
}

func (r *MedicationRepository) ListByDevice(ctx context.Context, deviceID uuid.UUID, activeOnly bool) ([]*medication.Plan, error) {
	q := r.db.conn(ctx).Where("device_id = ?", deviceID)
	if activeOnly {
		q = q.Where("active = true")
	}
	return r.list(q)
}

func (r *MedicationRepository) FindActiveBySlot(ctx context.Context, patientID uuid.UUID, slotIndex int) (*medication.Plan, error) {
	var dbModel models.MedicationPlanModel
	err := r.db.conn(ctx).
		Where("patient_id = ? AND slot_index = ? AND active = true", patientID, slotIndex).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, medication.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan by slot: %w", err)
	}

	return toPlanEntity(&dbModel), nil
}

func (r *MedicationRepository) ListLowStock(ctx context.Context, threshold int) ([]*medication.Plan, error) {
	q := r.db.conn(ctx).
		Where("active = true AND stock_remaining <= ?", threshold).
		Order("stock_remaining ASC")
	return r.list(q)
}

func (r *MedicationRepository) list(q *gorm.DB) ([]*medication.Plan, error) {
	var dbModels []models.MedicationPlanModel
	if err := q.Order("slot_index ASC").Order("created_at ASC").Find(&dbModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list medication plans: %w", err)
	}

	plans := make([]*medication.Plan, len(dbModels))
	for i := range dbModels {
		plans[i] = toPlanEntity(&dbModels[i])
	}
	return plans, nil
}

func toPlanModel(p *medication.Plan) *models.MedicationPlanModel {
	return &models.MedicationPlanModel{
		ID:              p.ID,
		PatientID:       p.PatientID,
		DeviceID:        p.DeviceID,
		Name:            p.Name,
		Strength:        p.Strength,
		Form:            string(p.Form),
		SlotIndex:       p.SlotIndex,
		DosagePerIntake: p.DosagePerIntake,
		Times:           p.Times,
		DaysOfWeek:      p.DaysOfWeek,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		Instructions:    p.Instructions,
		Active:          p.Active,
		StockTotal:      p.Stock.TotalLoaded,
		StockRemaining:  p.Stock.Remaining,
		LastRefilledAt:  p.Stock.LastRefilledAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toPlanEntity(m *models.MedicationPlanModel) *medication.Plan {
	return &medication.Plan{
		ID:              m.ID,
		PatientID:       m.PatientID,
		DeviceID:        m.DeviceID,
		Name:            m.Name,
		Strength:        m.Strength,
		Form:            medication.Form(m.Form),
		SlotIndex:       m.SlotIndex,
		DosagePerIntake: m.DosagePerIntake,
		Times:           m.Times,
		DaysOfWeek:      m.DaysOfWeek,
		StartDate:       m.StartDate,
		EndDate:         m.EndDate,
		Instructions:    m.Instructions,
		Active:          m.Active,
		Stock: medication.Stock{
			TotalLoaded:    m.StockTotal,
			Remaining:      m.StockRemaining,
			LastRefilledAt: m.LastRefilledAt,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
