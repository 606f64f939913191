package dose

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/schedule"
	"medication-adherence-monitor/pkg/utils"
)

var (
	dashboardActions = []domainDose.Status{domainDose.StatusTaken, domainDose.StatusMissed}
	hardwareActions  = []domainDose.Status{
		domainDose.StatusTaken,
		domainDose.StatusSkipped,
		domainDose.StatusDispensed,
		domainDose.StatusError,
	}
)

// actor scopes which doses a caller may touch. Zero ids leave that side
// unchecked.
type actor struct {
	source    string
	patientID uuid.UUID
	deviceID  uuid.UUID
}

func (a actor) owns(patientID, deviceID uuid.UUID) bool {
	if a.patientID != uuid.Nil && a.patientID != patientID {
		return false
	}
	if a.deviceID != uuid.Nil && a.deviceID != deviceID {
		return false
	}
	return true
}

// MarkForPatient applies a dashboard action (taken or missed) to one of the
// patient's doses. rawRef is a log id or a "<planID>_<epochMillis>" key.
func (s *Service) MarkForPatient(ctx context.Context, userID uuid.UUID, rawRef string, to domainDose.Status) (*domainDose.Log, error) {
	if !allowed(dashboardActions, to) {
		return nil, domainDose.ErrUnsupportedAction
	}

	ref, err := domainDose.ParseRef(rawRef)
	if err != nil {
		return nil, err
	}

	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.mark(ctx, ref, to, actor{source: SourceDashboard, patientID: p.ID}, "")
}

// DeviceMark is a hardware confirmation. DeviceID, when set, restricts the
// dose to that dispenser.
type DeviceMark struct {
	Ref      string
	Status   domainDose.Status
	DeviceID string
	Reason   string
	Source   string
}

func (s *Service) MarkForDevice(ctx context.Context, m DeviceMark) (*domainDose.Log, error) {
	if !allowed(hardwareActions, m.Status) {
		return nil, domainDose.ErrUnsupportedAction
	}

	ref, err := domainDose.ParseRef(m.Ref)
	if err != nil {
		return nil, err
	}

	a := actor{source: m.Source}
	if a.source == "" {
		a.source = SourceHardware
	}
	if m.DeviceID != "" {
		dev, err := s.lookupDevice(ctx, m.DeviceID)
		if err != nil {
			return nil, err
		}
		a.deviceID = dev.ID
	}

	return s.mark(ctx, ref, m.Status, a, utils.SanitizeString(m.Reason))
}

func (s *Service) mark(ctx context.Context, ref domainDose.Ref, to domainDose.Status, a actor, reason string) (*domainDose.Log, error) {
	deviceID, err := s.refDevice(ctx, ref)
	if err != nil {
		return nil, err
	}
	unlock, err := s.opts.Locker.Lock(ctx, deviceLockKey(deviceID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()

	var (
		result  *domainDose.Log
		from    domainDose.Status
		changed bool
	)

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		l, err := s.resolve(ctx, ref, a)
		if err != nil {
			return err
		}

		from = l.Status
		changed, err = domainDose.Apply(l, to, now, reason)
		if err != nil {
			return err
		}
		if changed {
			if err := s.doseRepo.UpdateStatus(ctx, l, from); err != nil {
				return err
			}
		}

		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.opts.Metrics.DoseTransition(a.source, string(to))
		logger.Info("Dose status updated",
			zap.String("dose_id", result.ID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("source", a.source),
			zap.String("event", "dose_marked"),
		)
	}

	return result, nil
}

// refDevice returns the dispenser a ref belongs to, so a mark can take the
// same lock as Reconcile. Ownership is checked later by resolve.
func (s *Service) refDevice(ctx context.Context, ref domainDose.Ref) (uuid.UUID, error) {
	switch r := ref.(type) {
	case domainDose.PersistedRef:
		l, err := s.doseRepo.GetByID(ctx, r.ID)
		if err != nil {
			return uuid.Nil, err
		}
		return l.DeviceID, nil

	case domainDose.VirtualRef:
		plan, err := s.planRepo.GetByID(ctx, r.PlanID)
		if errors.Is(err, medication.ErrPlanNotFound) {
			return uuid.Nil, domainDose.ErrDoseNotFound
		}
		if err != nil {
			return uuid.Nil, err
		}
		return plan.DeviceID, nil
	}

	return uuid.Nil, domainDose.ErrInvalidRef
}

// resolve loads the log ref points at, materializing a virtual occurrence
// as pending first.
func (s *Service) resolve(ctx context.Context, ref domainDose.Ref, a actor) (*domainDose.Log, error) {
	switch r := ref.(type) {
	case domainDose.PersistedRef:
		l, err := s.doseRepo.GetByID(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if !a.owns(l.PatientID, l.DeviceID) {
			return nil, domainDose.ErrDoseNotFound
		}
		return l, nil

	case domainDose.VirtualRef:
		plan, err := s.planRepo.GetByID(ctx, r.PlanID)
		if errors.Is(err, medication.ErrPlanNotFound) {
			return nil, domainDose.ErrDoseNotFound
		}
		if err != nil {
			return nil, err
		}
		if !a.owns(plan.PatientID, plan.DeviceID) {
			return nil, domainDose.ErrDoseNotFound
		}
		if !schedule.Occurs(plan, r.ScheduledAt, s.opts.Location) {
			return nil, domainDose.ErrDoseNotFound
		}

		l, err := s.doseRepo.GetByNaturalKey(ctx, plan.ID, r.ScheduledAt)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, domainDose.ErrDoseNotFound) {
			return nil, err
		}

		return s.doseRepo.CreateIfAbsent(ctx, &domainDose.Log{
			PatientID:        plan.PatientID,
			DeviceID:         plan.DeviceID,
			MedicationPlanID: plan.ID,
			SlotIndex:        plan.SlotIndex,
			ScheduledAt:      r.ScheduledAt.In(time.UTC),
			Status:           domainDose.StatusPending,
		})
	}

	return nil, domainDose.ErrInvalidRef
}

func allowed(actions []domainDose.Status, s domainDose.Status) bool {
	for _, a := range actions {
		if a == s {
			return true
		}
	}
	return false
}
