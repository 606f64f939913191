package medication

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/clock"
	"medication-adherence-monitor/internal/domain"
	"medication-adherence-monitor/internal/domain/device"
	domainMedication "medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/logger"
	appErrors "medication-adherence-monitor/pkg/errors"
	"medication-adherence-monitor/pkg/utils"
)

// Service manages a patient's medication plans and their dispenser slots.
type Service struct {
	planRepo    domainMedication.Repository
	patientRepo patient.Repository
	deviceRepo  device.Repository
	tx          domain.Transactor
	clock       clock.Clock
}

func NewService(
	planRepo domainMedication.Repository,
	patientRepo patient.Repository,
	deviceRepo device.Repository,
	tx domain.Transactor,
	clk clock.Clock,
) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		planRepo:    planRepo,
		patientRepo: patientRepo,
		deviceRepo:  deviceRepo,
		tx:          tx,
		clock:       clk,
	}
}

// List returns the patient's active plans in slot order.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*MedicineResponse, error) {
	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	plans, err := s.planRepo.ListByPatient(ctx, p.ID, true)
	if err != nil {
		return nil, err
	}

	out := make([]*MedicineResponse, 0, len(plans))
	for _, plan := range plans {
		out = append(out, ToMedicineResponse(plan))
	}
	return out, nil
}

func (s *Service) Add(ctx context.Context, userID uuid.UUID, req *AddMedicineRequest) (*MedicineResponse, error) {
	req.MedicationName = utils.SanitizeString(req.MedicationName)
	req.MedicationStrength = utils.SanitizeString(req.MedicationStrength)
	req.Instructions = utils.SanitizeStringPtr(req.Instructions)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}

	now := s.clock.Now()
	start := now
	if req.StartDate != nil {
		start = *req.StartDate
	}
	if req.EndDate != nil && req.EndDate.Before(start) {
		return nil, appErrors.NewAppError(appErrors.CodeValidation, "endDate must not be before startDate", domainMedication.ErrInvalidSchedule)
	}

	form := domainMedication.FormTablet
	if req.MedicationForm != "" {
		form = domainMedication.Form(req.MedicationForm)
	}

	plan := &domainMedication.Plan{
		Name:            req.MedicationName,
		Strength:        req.MedicationStrength,
		Form:            form,
		SlotIndex:       *req.SlotIndex,
		DosagePerIntake: req.DosagePerIntake,
		Times:           dedupeTimes(req.Times),
		DaysOfWeek:      dedupeDays(req.DaysOfWeek),
		StartDate:       start,
		EndDate:         req.EndDate,
		Instructions:    req.Instructions,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Stock != nil {
		plan.Stock.TotalLoaded = req.Stock.TotalLoaded
		plan.SetRemaining(req.Stock.Remaining)
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		p, dev, err := s.patientDevice(ctx, userID)
		if err != nil {
			return err
		}
		plan.PatientID = p.ID
		plan.DeviceID = dev.ID

		if err := s.checkSlot(ctx, dev, p.ID, plan.SlotIndex, uuid.Nil); err != nil {
			return err
		}
		return s.planRepo.Create(ctx, plan)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Medicine added",
		zap.String("plan_id", plan.ID.String()),
		zap.String("patient_id", plan.PatientID.String()),
		zap.Int("slot_index", plan.SlotIndex),
		zap.String("event", "medicine_added"),
	)

	return ToMedicineResponse(plan), nil
}

func (s *Service) Update(ctx context.Context, userID, planID uuid.UUID, req *UpdateMedicineRequest) (*MedicineResponse, error) {
	req.MedicationName = utils.SanitizeStringPtr(req.MedicationName)
	req.MedicationStrength = utils.SanitizeStringPtr(req.MedicationStrength)
	req.Instructions = utils.SanitizeStringPtr(req.Instructions)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewValidationError(err)
	}
	if err := validateRecurrence(req.Times, req.DaysOfWeek); err != nil {
		return nil, err
	}

	var plan *domainMedication.Plan
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		plan, err = s.ownedPlan(ctx, userID, planID)
		if err != nil {
			return err
		}

		slotChanged := req.SlotIndex != nil && *req.SlotIndex != plan.SlotIndex
		reactivated := req.Active != nil && *req.Active && !plan.Active

		applyUpdate(plan, req)
		if plan.EndDate != nil && plan.EndDate.Before(plan.StartDate) {
			return appErrors.NewAppError(appErrors.CodeValidation, "endDate must not be before startDate", domainMedication.ErrInvalidSchedule)
		}

		if plan.Active && (slotChanged || reactivated) {
			dev, err := s.deviceRepo.GetByID(ctx, plan.DeviceID)
			if err != nil {
				return err
			}
			if err := s.checkSlot(ctx, dev, plan.PatientID, plan.SlotIndex, plan.ID); err != nil {
				return err
			}
		}

		plan.UpdatedAt = s.clock.Now()
		return s.planRepo.Update(ctx, plan)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Medicine updated",
		zap.String("plan_id", plan.ID.String()),
		zap.Bool("active", plan.Active),
		zap.String("event", "medicine_updated"),
	)

	return ToMedicineResponse(plan), nil
}

func (s *Service) Refill(ctx context.Context, userID, planID uuid.UUID, req *RefillRequest) (*MedicineResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewAppError(appErrors.CodeValidation, "Invalid refill amount", err)
	}

	var plan *domainMedication.Plan
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		plan, err = s.ownedPlan(ctx, userID, planID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		plan.Refill(req.Amount, now)
		plan.UpdatedAt = now
		return s.planRepo.Update(ctx, plan)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Medicine refilled",
		zap.String("plan_id", plan.ID.String()),
		zap.Int("amount", req.Amount),
		zap.Int("remaining", plan.Stock.Remaining),
		zap.String("event", "medicine_refilled"),
	)

	return ToMedicineResponse(plan), nil
}

func (s *Service) patientDevice(ctx context.Context, userID uuid.UUID) (*patient.Patient, *device.Device, error) {
	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if p.DeviceID == nil {
		return nil, nil, patient.ErrNoDeviceLinked
	}
	dev, err := s.deviceRepo.GetByID(ctx, *p.DeviceID)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return nil, nil, patient.ErrNoDeviceLinked
	}
	if err != nil {
		return nil, nil, err
	}
	return p, dev, nil
}

// ownedPlan loads a plan of the caller's; other patients' plans read as not found.
func (s *Service) ownedPlan(ctx context.Context, userID, planID uuid.UUID) (*domainMedication.Plan, error) {
	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.PatientID != p.ID {
		return nil, domainMedication.ErrPlanNotFound
	}
	return plan, nil
}

// checkSlot enforces the slot range and the one-active-plan-per-slot rule.
// self is excluded from the occupancy check.
func (s *Service) checkSlot(ctx context.Context, dev *device.Device, patientID uuid.UUID, slot int, self uuid.UUID) error {
	if !dev.HasSlot(slot) {
		return domainMedication.ErrSlotOutOfRange
	}
	existing, err := s.planRepo.FindActiveBySlot(ctx, patientID, slot)
	switch {
	case errors.Is(err, domainMedication.ErrPlanNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return domainMedication.ErrSlotOccupied
	}
	return nil
}

func applyUpdate(plan *domainMedication.Plan, req *UpdateMedicineRequest) {
	if req.MedicationName != nil {
		plan.Name = *req.MedicationName
	}
	if req.MedicationStrength != nil {
		plan.Strength = *req.MedicationStrength
	}
	if req.MedicationForm != nil {
		plan.Form = domainMedication.Form(*req.MedicationForm)
	}
	if req.DosagePerIntake != nil {
		plan.DosagePerIntake = *req.DosagePerIntake
	}
	if req.SlotIndex != nil {
		plan.SlotIndex = *req.SlotIndex
	}
	if req.Times != nil {
		plan.Times = dedupeTimes(*req.Times)
	}
	if req.DaysOfWeek != nil {
		plan.DaysOfWeek = dedupeDays(*req.DaysOfWeek)
	}
	if req.StartDate != nil {
		plan.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		plan.EndDate = req.EndDate
	}
	if req.Instructions != nil {
		plan.Instructions = req.Instructions
	}
	if req.Active != nil {
		plan.Active = *req.Active
	}
	if req.StockRemaining != nil {
		plan.SetRemaining(*req.StockRemaining)
	}
}

func validateRecurrence(times *[]string, days *[]int) error {
	var details []utils.FieldError
	if times != nil {
		for _, t := range *times {
			if !utils.IsHHMM(t) {
				details = append(details, utils.FieldError{Field: "times", Message: "must be a time in HH:MM format"})
				break
			}
		}
	}
	if days != nil {
		for _, d := range *days {
			if d < 1 || d > 7 {
				details = append(details, utils.FieldError{Field: "daysOfWeek", Message: "must be a weekday between 1 (Monday) and 7 (Sunday)"})
				break
			}
		}
	}
	if len(details) == 0 {
		return nil
	}
	return appErrors.NewAppError(appErrors.CodeValidation, "Invalid input", &ScheduleError{Details: details})
}

// ScheduleError carries field errors found outside struct-tag validation.
type ScheduleError struct {
	Details []utils.FieldError
}

func (e *ScheduleError) Error() string { return domainMedication.ErrInvalidSchedule.Error() }
func (e *ScheduleError) Unwrap() error { return domainMedication.ErrInvalidSchedule }

func dedupeTimes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func dedupeDays(in []int) []int {
	out := make([]int, 0, len(in))
	seen := make(map[int]struct{}, len(in))
	for _, d := range in {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
