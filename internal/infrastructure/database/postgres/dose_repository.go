package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/infrastructure/database/postgres/models"
)

const createBatchSize = 100

var naturalKeyConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "medication_plan_id"}, {Name: "scheduled_at"}},
	DoNothing: true,
}

// DoseRepository implements dose.Repository
type DoseRepository struct {
	db *DB
}

func NewDoseRepository(db *DB) dose.Repository {
	return &DoseRepository{db: db}
}

func (r *DoseRepository) GetByID(ctx context.Context, id uuid.UUID) (*dose.Log, error) {
	var dbModel models.DoseLogModel
	err := r.db.conn(ctx).Where("id = ?", id).First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dose.ErrDoseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dose log: %w", err)
	}

	return toDoseEntity(&dbModel), nil
}

func (r *DoseRepository) GetByNaturalKey(ctx context.Context, planID uuid.UUID, scheduledAt time.Time) (*dose.Log, error) {
	var dbModel models.DoseLogModel
	err := r.db.conn(ctx).
		Where("medication_plan_id = ? AND scheduled_at = ?", planID, scheduledAt).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, dose.ErrDoseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dose log: %w", err)
	}

	return toDoseEntity(&dbModel), nil
}

func (r *DoseRepository) CreateIfAbsent(ctx context.Context, l *dose.Log) (*dose.Log, error) {
	stampNew(l)

	if err := r.db.conn(ctx).Clauses(naturalKeyConflict).Create(toDoseModel(l)).Error; err != nil {
		return nil, fmt.Errorf("failed to create dose log: %w", err)
	}

	return r.GetByNaturalKey(ctx, l.MedicationPlanID, l.ScheduledAt)
}

func (r *DoseRepository) CreateMissing(ctx context.Context, logs []*dose.Log) error {
	if len(logs) == 0 {
		return nil
	}

	dbModels := make([]*models.DoseLogModel, len(logs))
	for i, l := range logs {
		stampNew(l)
		dbModels[i] = toDoseModel(l)
	}

	if err := r.db.conn(ctx).Clauses(naturalKeyConflict).CreateInBatches(dbModels, createBatchSize).Error; err != nil {
		return fmt.Errorf("failed to create dose logs: %w", err)
	}
	return nil
}

func (r *DoseRepository) UpdateStatus(ctx context.Context, l *dose.Log, expected dose.Status) error {
	l.UpdatedAt = time.Now()

	result := r.db.conn(ctx).Model(&models.DoseLogModel{}).
		Where("id = ? AND status = ?", l.ID, string(expected)).
		Updates(map[string]interface{}{
			"status":        string(l.Status),
			"dispensed_at":  l.DispensedAt,
			"taken_at":      l.TakenAt,
			"missed_reason": l.MissedReason,
			"updated_at":    l.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update dose status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, l.ID); err != nil {
			return err
		}
		return dose.ErrConcurrentUpdate
	}

	return nil
}

func (r *DoseRepository) ResetStaleDispensed(ctx context.Context, deviceID uuid.UUID, dispensedBefore time.Time) (int64, error) {
	result := r.db.conn(ctx).Model(&models.DoseLogModel{}).
		Where("device_id = ? AND status = ? AND dispensed_at <= ?", deviceID, string(dose.StatusDispensed), dispensedBefore).
		Updates(map[string]interface{}{
			"status":       string(dose.StatusPending),
			"dispensed_at": nil,
			"updated_at":   time.Now(),
		})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset stale dispensed doses: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *DoseRepository) MarkOverdueMissed(ctx context.Context, deviceID uuid.UUID, scheduledBefore time.Time, reason string) ([]*dose.Log, error) {
	var dbModels []models.DoseLogModel
	result := r.db.conn(ctx).Model(&dbModels).
		Clauses(clause.Returning{}).
		Where("device_id = ? AND status IN ? AND scheduled_at <= ?",
			deviceID,
			[]string{string(dose.StatusPending), string(dose.StatusDispensed)},
			scheduledBefore,
		).
		Updates(map[string]interface{}{
			"status":        string(dose.StatusMissed),
			"missed_reason": reason,
			"taken_at":      nil,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return nil, fmt.Errorf("failed to mark overdue doses missed: %w", result.Error)
	}

	logs := make([]*dose.Log, len(dbModels))
	for i := range dbModels {
		logs[i] = toDoseEntity(&dbModels[i])
	}
	return logs, nil
}

func (r *DoseRepository) List(ctx context.Context, f dose.Filter) ([]*dose.Log, error) {
	q := r.db.conn(ctx)

	if len(f.PatientIDs) > 0 {
		q = q.Where("patient_id IN ?", f.PatientIDs)
	}
	if f.DeviceID != nil {
		q = q.Where("device_id = ?", *f.DeviceID)
	}
	if f.PlanID != nil {
		q = q.Where("medication_plan_id = ?", *f.PlanID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.From != nil {
		q = q.Where("scheduled_at >= ?", *f.From)
	}
	if f.After != nil {
		q = q.Where("scheduled_at > ?", *f.After)
	}
	if f.Before != nil {
		q = q.Where("scheduled_at < ?", *f.Before)
	}
	if f.Until != nil {
		q = q.Where("scheduled_at <= ?", *f.Until)
	}

	if f.Desc {
		q = q.Order("scheduled_at DESC").Order("created_at DESC")
	} else {
		q = q.Order("scheduled_at ASC").Order("created_at ASC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var dbModels []models.DoseLogModel
	if err := q.Find(&dbModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list dose logs: %w", err)
	}

	logs := make([]*dose.Log, len(dbModels))
	for i := range dbModels {
		logs[i] = toDoseEntity(&dbModels[i])
	}
	return logs, nil
}

func stampNew(l *dose.Log) {
	now := time.Now()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = dose.StatusPending
	}
	l.CreatedAt = now
	l.UpdatedAt = now
}

func toDoseModel(l *dose.Log) *models.DoseLogModel {
	return &models.DoseLogModel{
		ID:               l.ID,
		PatientID:        l.PatientID,
		DeviceID:         l.DeviceID,
		MedicationPlanID: l.MedicationPlanID,
		SlotIndex:        l.SlotIndex,
		ScheduledAt:      l.ScheduledAt,
		Status:           string(l.Status),
		DispensedAt:      l.DispensedAt,
		TakenAt:          l.TakenAt,
		MissedReason:     l.MissedReason,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

func toDoseEntity(m *models.DoseLogModel) *dose.Log {
	return &dose.Log{
		ID:               m.ID,
		PatientID:        m.PatientID,
		DeviceID:         m.DeviceID,
		MedicationPlanID: m.MedicationPlanID,
		SlotIndex:        m.SlotIndex,
		ScheduledAt:      m.ScheduledAt,
		Status:           dose.Status(m.Status),
		DispensedAt:      m.DispensedAt,
		TakenAt:          m.TakenAt,
		MissedReason:     m.MissedReason,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
