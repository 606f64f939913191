package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"medication-adherence-monitor/internal/infrastructure/database/postgres/models"
	"medication-adherence-monitor/internal/logger"
)

// Constraints gorm tags cannot express.
var extraStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_medication_plans_active_slot
		ON medication_plans (patient_id, slot_index) WHERE active`,
	`DO $$ BEGIN
		ALTER TABLE dose_logs ADD CONSTRAINT chk_dose_logs_status
			CHECK (status IN ('pending','dispensed','taken','missed','skipped','error'));
	EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
}

// Migrate creates or updates the schema.
func (d *DB) Migrate(ctx context.Context) error {
	db := d.DB.WithContext(ctx)

	if err := db.Exec(extraStatements[0]).Error; err != nil {
		return fmt.Errorf("failed to enable pgcrypto: %w", err)
	}

	if err := db.AutoMigrate(
		&models.UserModel{},
		&models.RefreshTokenModel{},
		&models.DeviceModel{},
		&models.PatientModel{},
		&models.CaretakerLinkModel{},
		&models.PatientDoctorModel{},
		&models.MedicationPlanModel{},
		&models.DoseLogModel{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	for _, stmt := range extraStatements[1:] {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply constraint: %w", err)
		}
	}

	logger.Info("Database schema migrated", zap.String("event", "schema_migrated"))
	return nil
}
