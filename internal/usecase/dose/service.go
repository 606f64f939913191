package dose

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/clock"
	"medication-adherence-monitor/internal/domain"
	"medication-adherence-monitor/internal/domain/device"
	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/metrics"
	"medication-adherence-monitor/internal/schedule"
	appErrors "medication-adherence-monitor/pkg/errors"
)

const (
	DefaultGraceWindow = 30 * time.Minute
	DefaultRetryWindow = 5 * time.Minute
	DefaultHorizon     = 24 * time.Hour
	DeviceHistoryDays  = 7

	MissedReasonGrace = "not confirmed within grace window"
)

// Sources recorded on dose transitions.
const (
	SourceDashboard  = "dashboard"
	SourceHardware   = "hardware"
	SourceMQTT       = "mqtt"
	SourceReconciler = "reconciler"
)

// Notifier is told about doses the reconciler marked missed, after commit.
type Notifier interface {
	NotifyMissed(ctx context.Context, logs []*domainDose.Log)
}

type Options struct {
	GraceWindow time.Duration
	RetryWindow time.Duration
	Horizon     time.Duration
	Location    *time.Location
	Clock       clock.Clock
	Locker      Locker
	Notifier    Notifier
	Metrics     *metrics.Metrics
}

// Service projects schedules, reconciles device windows and applies dose
// status changes.
type Service struct {
	doseRepo    domainDose.Repository
	planRepo    medication.Repository
	patientRepo patient.Repository
	deviceRepo  device.Repository
	tx          domain.Transactor
	opts        Options
}

func NewService(
	doseRepo domainDose.Repository,
	planRepo medication.Repository,
	patientRepo patient.Repository,
	deviceRepo device.Repository,
	tx domain.Transactor,
	opts Options,
) *Service {
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = DefaultGraceWindow
	}
	if opts.RetryWindow <= 0 {
		opts.RetryWindow = DefaultRetryWindow
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}

	return &Service{
		doseRepo:    doseRepo,
		planRepo:    planRepo,
		patientRepo: patientRepo,
		deviceRepo:  deviceRepo,
		tx:          tx,
		opts:        opts,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Clock.Now().In(s.opts.Location)
}

// Location is the zone schedules are projected in.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// Today returns the patient's schedule for the current day without writing.
func (s *Service) Today(ctx context.Context, userID uuid.UUID) ([]ScheduleItem, error) {
	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := schedule.StartOfDay(now)
	end := start.AddDate(0, 0, 1)

	plans, err := s.planRepo.ListByPatient(ctx, p.ID, true)
	if err != nil {
		return nil, err
	}

	logs, err := s.doseRepo.List(ctx, domainDose.Filter{
		PatientIDs: []uuid.UUID{p.ID},
		From:       &start,
		Before:     &end,
	})
	if err != nil {
		return nil, err
	}

	return DaySchedule(plans, logs, now), nil
}

// Upcoming reconciles the device's window and renders it for hardware.
func (s *Service) Upcoming(ctx context.Context, externalDeviceID string) ([]DeviceDose, error) {
	dev, err := s.lookupDevice(ctx, externalDeviceID)
	if err != nil {
		return nil, err
	}

	logs, plans, err := s.Reconcile(ctx, dev)
	if err != nil {
		return nil, err
	}

	out := make([]DeviceDose, len(logs))
	for i, l := range logs {
		out[i] = ToDeviceDose(l, plans[l.MedicationPlanID], s.opts.Location)
	}
	return out, nil
}

// Reconcile runs the device's auto-transitions and materializes its window
// (now-grace, now+horizon] in one transaction, holding the device lock
// that marks also take.
// Logs come back ascending by scheduled time, with their plans indexed by id.
func (s *Service) Reconcile(ctx context.Context, dev *device.Device) ([]*domainDose.Log, map[uuid.UUID]*medication.Plan, error) {
	started := time.Now()

	unlock, err := s.opts.Locker.Lock(ctx, deviceLockKey(dev.ID))
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	now := s.now()
	after := now.Add(-s.opts.GraceWindow)
	until := now.Add(s.opts.Horizon)

	var (
		logs   []*domainDose.Log
		missed []*domainDose.Log
		reset  int64
		plans  map[uuid.UUID]*medication.Plan
	)

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error

		// Decay runs first so a reverted dose is still caught by the grace check.
		reset, err = s.doseRepo.ResetStaleDispensed(ctx, dev.ID, now.Add(-s.opts.RetryWindow))
		if err != nil {
			return err
		}
		missed, err = s.doseRepo.MarkOverdueMissed(ctx, dev.ID, after, MissedReasonGrace)
		if err != nil {
			return err
		}

		active, err := s.planRepo.ListByDevice(ctx, dev.ID, true)
		if err != nil {
			return err
		}

		filter := domainDose.Filter{DeviceID: &dev.ID, After: &after, Until: &until}
		logs, err = s.doseRepo.List(ctx, filter)
		if err != nil {
			return err
		}

		have := make(map[domainDose.Key]struct{}, len(logs))
		for _, l := range logs {
			have[l.Key()] = struct{}{}
		}

		var fresh []*domainDose.Log
		for _, occ := range schedule.ProjectWindow(active, after, until) {
			key := domainDose.NewKey(occ.Plan.ID, occ.ScheduledAt)
			if _, ok := have[key]; ok {
				continue
			}
			have[key] = struct{}{}
			fresh = append(fresh, &domainDose.Log{
				PatientID:        occ.Plan.PatientID,
				DeviceID:         dev.ID,
				MedicationPlanID: occ.Plan.ID,
				SlotIndex:        occ.Plan.SlotIndex,
				ScheduledAt:      occ.ScheduledAt,
				Status:           domainDose.StatusPending,
			})
		}

		if len(fresh) > 0 {
			if err := s.doseRepo.CreateMissing(ctx, fresh); err != nil {
				return err
			}
			// Concurrent writers may have won some keys; read back what is stored.
			if logs, err = s.doseRepo.List(ctx, filter); err != nil {
				return err
			}
		}

		plans, err = s.indexPlans(ctx, active, logs)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].ScheduledAt.Before(logs[j].ScheduledAt)
	})

	s.opts.Metrics.DoseTransitions(SourceReconciler, string(domainDose.StatusPending), int(reset))
	s.opts.Metrics.DoseTransitions(SourceReconciler, string(domainDose.StatusMissed), len(missed))
	s.opts.Metrics.ObserveReconcile(time.Since(started))

	if reset > 0 || len(missed) > 0 {
		logger.Info("Device doses reconciled",
			zap.String("device_id", dev.DeviceID),
			zap.Int64("reset_to_pending", reset),
			zap.Int("marked_missed", len(missed)),
			zap.String("event", "doses_reconciled"),
		)
	}

	if len(missed) > 0 && s.opts.Notifier != nil {
		s.opts.Notifier.NotifyMissed(ctx, missed)
	}

	return logs, plans, nil
}

// indexPlans maps plan ids to plans for every log, loading plans that are
// no longer active.
func (s *Service) indexPlans(ctx context.Context, active []*medication.Plan, logs []*domainDose.Log) (map[uuid.UUID]*medication.Plan, error) {
	plans := make(map[uuid.UUID]*medication.Plan, len(active))
	for _, p := range active {
		plans[p.ID] = p
	}
	for _, l := range logs {
		if _, ok := plans[l.MedicationPlanID]; ok {
			continue
		}
		p, err := s.planRepo.GetByID(ctx, l.MedicationPlanID)
		if errors.Is(err, medication.ErrPlanNotFound) {
			plans[l.MedicationPlanID] = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		plans[p.ID] = p
	}
	return plans, nil
}

// DeviceHistory lists the device's doses in the given statuses over the last
// seven days, newest first.
func (s *Service) DeviceHistory(ctx context.Context, externalDeviceID string, statuses ...domainDose.Status) ([]DeviceDose, error) {
	dev, err := s.lookupDevice(ctx, externalDeviceID)
	if err != nil {
		return nil, err
	}

	from := s.now().AddDate(0, 0, -DeviceHistoryDays)
	logs, err := s.doseRepo.List(ctx, domainDose.Filter{
		DeviceID: &dev.ID,
		Statuses: statuses,
		From:     &from,
		Desc:     true,
	})
	if err != nil {
		return nil, err
	}

	plans, err := s.indexPlans(ctx, nil, logs)
	if err != nil {
		return nil, err
	}

	out := make([]DeviceDose, len(logs))
	for i, l := range logs {
		out[i] = ToDeviceDose(l, plans[l.MedicationPlanID], s.opts.Location)
	}
	return out, nil
}

func (s *Service) lookupDevice(ctx context.Context, externalDeviceID string) (*device.Device, error) {
	externalDeviceID = strings.TrimSpace(externalDeviceID)
	if externalDeviceID == "" {
		return nil, appErrors.NewAppError(appErrors.CodeValidation, "deviceId is required", appErrors.ErrInvalidInput)
	}
	return s.deviceRepo.GetByDeviceID(ctx, externalDeviceID)
}
