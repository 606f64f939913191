// Package overview composes the caretaker, doctor and admin dashboards.
package overview

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"medication-adherence-monitor/internal/adherence"
	"medication-adherence-monitor/internal/clock"
	"medication-adherence-monitor/internal/domain/device"
	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/domain/user"
	"medication-adherence-monitor/internal/schedule"
	doseUsecase "medication-adherence-monitor/internal/usecase/dose"
)

const (
	DefaultConcurrency     = 8
	DefaultOnlineThreshold = 10 * time.Minute

	AdherenceWindowDays = 7
	OnTrackThreshold    = 85

	ScheduleLimit     = 20
	ActivityLimit     = 10
	ClinicalTaskLimit = 6

	StatusOnTrack        = "On Track"
	StatusNeedsAttention = "Needs Attention"

	defaultPatientName = "Patient"
)

type Options struct {
	Concurrency     int
	OnlineThreshold time.Duration
	Location        *time.Location
	Clock           clock.Clock
}

type Service struct {
	patientRepo patient.Repository
	userRepo    user.Repository
	planRepo    medication.Repository
	doseRepo    dose.Repository
	deviceRepo  device.Repository
	opts        Options
}

func NewService(
	patientRepo patient.Repository,
	userRepo user.Repository,
	planRepo medication.Repository,
	doseRepo dose.Repository,
	deviceRepo device.Repository,
	opts Options,
) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.OnlineThreshold <= 0 {
		opts.OnlineThreshold = DefaultOnlineThreshold
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Service{
		patientRepo: patientRepo,
		userRepo:    userRepo,
		planRepo:    planRepo,
		doseRepo:    doseRepo,
		deviceRepo:  deviceRepo,
		opts:        opts,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Clock.Now().In(s.opts.Location)
}

// snapshot is everything the dashboards need about one patient.
type snapshot struct {
	patient *patient.Patient
	name    string
	plans   []*medication.Plan
	// recent holds the last seven days of logs, newest first.
	recent   []*dose.Log
	today    []doseUsecase.ScheduleItem
	rate     adherence.Rate
	todayLog int
}

// loadSnapshots fans out over patients, bounded by the configured
// concurrency. Results keep the order of patients.
func (s *Service) loadSnapshots(ctx context.Context, patients []*patient.Patient, now time.Time) ([]*snapshot, error) {
	names, err := s.patientNames(ctx, patients)
	if err != nil {
		return nil, err
	}

	since := now.AddDate(0, 0, -AdherenceWindowDays)
	start := schedule.StartOfDay(now)
	end := start.AddDate(0, 0, 1)

	out := make([]*snapshot, len(patients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, p := range patients {
		g.Go(func() error {
			plans, err := s.planRepo.ListByPatient(gctx, p.ID, true)
			if err != nil {
				return fmt.Errorf("load plans for patient %s: %w", p.ID, err)
			}
			logs, err := s.doseRepo.List(gctx, dose.Filter{
				PatientIDs: []uuid.UUID{p.ID},
				From:       &since,
				Desc:       true,
			})
			if err != nil {
				return fmt.Errorf("load doses for patient %s: %w", p.ID, err)
			}

			var todayLogs []*dose.Log
			for _, l := range logs {
				if !l.ScheduledAt.Before(start) && l.ScheduledAt.Before(end) {
					todayLogs = append(todayLogs, l)
				}
			}

			out[i] = &snapshot{
				patient:  p,
				name:     names[p.UserID],
				plans:    plans,
				recent:   logs,
				today:    doseUsecase.DaySchedule(plans, todayLogs, now),
				rate:     adherence.ComputeRate(logs),
				todayLog: len(todayLogs),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// patientNames maps user ids to display names, defaulting to "Patient".
func (s *Service) patientNames(ctx context.Context, patients []*patient.Patient) (map[uuid.UUID]string, error) {
	ids := make([]uuid.UUID, 0, len(patients))
	for _, p := range patients {
		ids = append(ids, p.UserID)
	}

	names := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		names[id] = defaultPatientName
	}
	if len(ids) == 0 {
		return names, nil
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Name != "" {
			names[u.ID] = u.Name
		}
	}
	return names, nil
}

func refillAlerts(snaps []*snapshot) []RefillAlert {
	var out []RefillAlert
	for _, snap := range snaps {
		for _, plan := range snap.plans {
			if alert, ok := newRefillAlert(plan, snap.name); ok {
				out = append(out, alert)
			}
		}
	}
	sortRefills(out)
	return out
}

func newRefillAlert(plan *medication.Plan, patientName string) (RefillAlert, bool) {
	severity, ok := plan.NeedsRefill()
	if !ok || !plan.Active {
		return RefillAlert{}, false
	}
	return RefillAlert{
		ID:        plan.ID,
		Name:      plan.DisplayName(),
		Patient:   patientName,
		PatientID: plan.PatientID,
		Remaining: plan.Stock.Remaining,
		Severity:  severity,
	}, true
}

func sortRefills(alerts []RefillAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Remaining < alerts[j].Remaining
	})
}

// activity lists resolved or in-flight doses up to now across every
// patient, newest first.
func activity(snaps []*snapshot, now time.Time) []ActivityItem {
	type entry struct {
		log  *dose.Log
		snap *snapshot
	}
	var all []entry
	for _, snap := range snaps {
		for _, l := range snap.recent {
			if !l.ScheduledAt.After(now) {
				all = append(all, entry{log: l, snap: snap})
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].log.ScheduledAt.After(all[j].log.ScheduledAt)
	})
	if len(all) > ActivityLimit {
		all = all[:ActivityLimit]
	}

	out := make([]ActivityItem, 0, len(all))
	for _, e := range all {
		out = append(out, ActivityItem{
			ID:   e.log.ID,
			Time: e.log.ScheduledAt,
			Text: fmt.Sprintf("%s %s %s", e.snap.name, activityVerb(e.log.Status), medicineName(e.snap.plans, e.log.MedicationPlanID)),
		})
	}
	return out
}

func activityVerb(s dose.Status) string {
	switch {
	case s == dose.StatusTaken:
		return "took"
	case s.CountsAsMissed():
		return "missed"
	default:
		return string(s)
	}
}

func medicineName(plans []*medication.Plan, planID uuid.UUID) string {
	for _, p := range plans {
		if p.ID == planID {
			return p.Name
		}
	}
	return "medicine"
}

func averageAdherence(snaps []*snapshot) int {
	if len(snaps) == 0 {
		return 0
	}
	total := 0
	for _, snap := range snaps {
		total += snap.rate.TakenPercent
	}
	return int(math.Round(float64(total) / float64(len(snaps))))
}
