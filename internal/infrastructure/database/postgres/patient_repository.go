package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/infrastructure/database/postgres/models"
)

// PatientRepository implements patient.Repository
type PatientRepository struct {
	db *DB
}

func NewPatientRepository(db *DB) patient.Repository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) withLinks(ctx context.Context) *gorm.DB {
	return r.db.conn(ctx).Preload("Caretakers").Preload("Doctors")
}

func (r *PatientRepository) Create(ctx context.Context, p *patient.Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	dbModel := toPatientModel(p)
	if err := r.db.conn(ctx).Omit(clause.Associations).Create(dbModel).Error; err != nil {
		if isDuplicateKey(err) {
			return patient.ErrPatientAlreadyExists
		}
		return fmt.Errorf("failed to create patient: %w", err)
	}

	return nil
}

func (r *PatientRepository) GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *PatientRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*patient.Patient, error) {
	return r.getOne(ctx, "user_id = ?", userID)
}

func (r *PatientRepository) GetByDeviceID(ctx context.Context, deviceID uuid.UUID) (*patient.Patient, error) {
	return r.getOne(ctx, "device_id = ?", deviceID)
}

func (r *PatientRepository) getOne(ctx context.Context, query string, arg interface{}) (*patient.Patient, error) {
	var dbModel models.PatientModel
	err := r.withLinks(ctx).Where(query, arg).First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, patient.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	return toPatientEntity(&dbModel), nil
}

func (r *PatientRepository) Update(ctx context.Context, p *patient.Patient) error {
	p.UpdatedAt = time.Now()

	dbModel := toPatientModel(p)
	result := r.db.conn(ctx).Model(&models.PatientModel{ID: p.ID}).
		Select("device_id", "illnesses", "allergies", "other_notes", "updated_at").
		Omit(clause.Associations).
		Updates(dbModel)

	if result.Error != nil {
		return fmt.Errorf("failed to update patient: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return patient.ErrPatientNotFound
	}

	return nil
}

func (r *PatientRepository) AddCaretaker(ctx context.Context, patientID uuid.UUID, link patient.CaretakerLink) error {
	dbModel := &models.CaretakerLinkModel{
		PatientID:    patientID,
		CaretakerID:  link.CaretakerID,
		Relationship: link.Relationship,
		Approved:     link.Approved,
		RequestedAt:  link.RequestedAt,
		ApprovedAt:   link.ApprovedAt,
	}
	if err := r.db.conn(ctx).Create(dbModel).Error; err != nil {
		if isDuplicateKey(err) {
			return patient.ErrLinkAlreadyExists
		}
		return fmt.Errorf("failed to add caretaker: %w", err)
	}
	return nil
}

func (r *PatientRepository) ApproveCaretaker(ctx context.Context, patientID, caretakerID uuid.UUID, at time.Time) error {
	result := r.db.conn(ctx).Model(&models.CaretakerLinkModel{}).
		Where("patient_id = ? AND caretaker_id = ?", patientID, caretakerID).
		Updates(map[string]interface{}{
			"approved":    true,
			"approved_at": at,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to approve caretaker: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return patient.ErrLinkNotFound
	}
	return nil
}

func (r *PatientRepository) AddDoctor(ctx context.Context, patientID, doctorID uuid.UUID) error {
	dbModel := &models.PatientDoctorModel{
		PatientID: patientID,
		DoctorID:  doctorID,
		CreatedAt: time.Now(),
	}
	if err := r.db.conn(ctx).Create(dbModel).Error; err != nil {
		if isDuplicateKey(err) {
			return patient.ErrLinkAlreadyExists
		}
		return fmt.Errorf("failed to add doctor: %w", err)
	}
	return nil
}

func (r *PatientRepository) ListByApprovedCaretaker(ctx context.Context, caretakerID uuid.UUID) ([]*patient.Patient, error) {
	sub := r.db.conn(ctx).Model(&models.CaretakerLinkModel{}).
		Select("patient_id").
		Where("caretaker_id = ? AND approved = true", caretakerID)

	return r.list(ctx, r.withLinks(ctx).Where("id IN (?)", sub))
}

func (r *PatientRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*patient.Patient, error) {
	sub := r.db.conn(ctx).Model(&models.PatientDoctorModel{}).
		Select("patient_id").
		Where("doctor_id = ?", doctorID)

	return r.list(ctx, r.withLinks(ctx).Where("id IN (?)", sub))
}

func (r *PatientRepository) list(_ context.Context, q *gorm.DB) ([]*patient.Patient, error) {
	var dbModels []models.PatientModel
	if err := q.Order("created_at ASC").Find(&dbModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	patients := make([]*patient.Patient, len(dbModels))
	for i := range dbModels {
		patients[i] = toPatientEntity(&dbModels[i])
	}
	return patients, nil
}

func (r *PatientRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.conn(ctx).Model(&models.PatientModel{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return count, nil
}

func toPatientModel(p *patient.Patient) *models.PatientModel {
	illnesses := make([]models.IllnessRecord, len(p.MedicalProfile.Illnesses))
	for i, ill := range p.MedicalProfile.Illnesses {
		illnesses[i] = models.IllnessRecord{
			Name:        ill.Name,
			DiagnosedAt: ill.DiagnosedAt,
			Status:      string(ill.Status),
			Notes:       ill.Notes,
		}
	}

	allergies := p.MedicalProfile.Allergies
	if allergies == nil {
		allergies = []string{}
	}

	return &models.PatientModel{
		ID:         p.ID,
		UserID:     p.UserID,
		DeviceID:   p.DeviceID,
		Illnesses:  illnesses,
		Allergies:  allergies,
		OtherNotes: p.MedicalProfile.OtherNotes,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func toPatientEntity(m *models.PatientModel) *patient.Patient {
	illnesses := make([]patient.Illness, len(m.Illnesses))
	for i, rec := range m.Illnesses {
		illnesses[i] = patient.Illness{
			Name:        rec.Name,
			DiagnosedAt: rec.DiagnosedAt,
			Status:      patient.IllnessStatus(rec.Status),
			Notes:       rec.Notes,
		}
	}

	caretakers := make([]patient.CaretakerLink, len(m.Caretakers))
	for i, c := range m.Caretakers {
		caretakers[i] = patient.CaretakerLink{
			CaretakerID:  c.CaretakerID,
			Relationship: c.Relationship,
			Approved:     c.Approved,
			RequestedAt:  c.RequestedAt,
			ApprovedAt:   c.ApprovedAt,
		}
	}

	doctorIDs := make([]uuid.UUID, len(m.Doctors))
	for i, d := range m.Doctors {
		doctorIDs[i] = d.DoctorID
	}

	return &patient.Patient{
		ID:       m.ID,
		UserID:   m.UserID,
		DeviceID: m.DeviceID,
		MedicalProfile: patient.MedicalProfile{
			Illnesses:  illnesses,
			Allergies:  m.Allergies,
			OtherNotes: m.OtherNotes,
		},
		Caretakers: caretakers,
		DoctorIDs:  doctorIDs,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
