package overview

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/domain/user"
	"medication-adherence-monitor/internal/schedule"
)

// Admin reports platform-wide counts, device connectivity, today's missed
// doses and the refill queue.
func (s *Service) Admin(ctx context.Context) (*AdminOverview, error) {
	now := s.now()
	start := schedule.StartOfDay(now)
	end := start.AddDate(0, 0, 1)
	onlineSince := now.Add(-s.opts.OnlineThreshold)

	var (
		view   AdminOverview
		missed []*dose.Log
		low    []*medication.Plan
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	g.Go(func() (err error) {
		view.Counts.Patients, err = s.patientRepo.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		view.Counts.Caretakers, err = s.userRepo.CountByRole(gctx, user.RoleCaretaker)
		return err
	})
	g.Go(func() (err error) {
		view.Counts.Doctors, err = s.userRepo.CountByRole(gctx, user.RoleDoctor)
		return err
	})
	g.Go(func() (err error) {
		view.Counts.Devices, err = s.deviceRepo.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		view.DevicesOnline, err = s.deviceRepo.CountOnlineSince(gctx, onlineSince)
		return err
	})
	g.Go(func() (err error) {
		missed, err = s.doseRepo.List(gctx, dose.Filter{
			Statuses: []dose.Status{dose.StatusMissed, dose.StatusSkipped},
			From:     &start,
			Before:   &end,
		})
		return err
	})
	g.Go(func() (err error) {
		low, err = s.planRepo.ListLowStock(gctx, medication.LowStockThreshold)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if view.Counts.Devices > 0 {
		view.DevicesOnlinePercent = int(math.Round(float64(view.DevicesOnline) / float64(view.Counts.Devices) * 100))
	}
	view.MissedToday = len(missed)

	queue, err := s.refillQueue(ctx, low)
	if err != nil {
		return nil, err
	}
	view.RefillQueue = queue

	return &view, nil
}

func (s *Service) refillQueue(ctx context.Context, plans []*medication.Plan) ([]RefillAlert, error) {
	seen := make(map[uuid.UUID]struct{})
	var patients []*patient.Patient
	for _, plan := range plans {
		if _, ok := seen[plan.PatientID]; ok {
			continue
		}
		seen[plan.PatientID] = struct{}{}

		p, err := s.patientRepo.GetByID(ctx, plan.PatientID)
		if errors.Is(err, patient.ErrPatientNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}

	byUser, err := s.patientNames(ctx, patients)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(patients))
	for _, p := range patients {
		names[p.ID] = byUser[p.UserID]
	}

	out := make([]RefillAlert, 0, len(plans))
	for _, plan := range plans {
		name, ok := names[plan.PatientID]
		if !ok {
			name = defaultPatientName
		}
		if alert, ok := newRefillAlert(plan, name); ok {
			out = append(out, alert)
		}
	}
	sortRefills(out)
	return out, nil
}
