// Package report serves a patient's adherence figures.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/adherence"
	"medication-adherence-monitor/internal/clock"
	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/schedule"
)

type Service struct {
	patientRepo patient.Repository
	planRepo    medication.Repository
	doseRepo    dose.Repository
	clock       clock.Clock
	loc         *time.Location
}

func NewService(
	patientRepo patient.Repository,
	planRepo medication.Repository,
	doseRepo dose.Repository,
	clk clock.Clock,
	loc *time.Location,
) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		patientRepo: patientRepo,
		planRepo:    planRepo,
		doseRepo:    doseRepo,
		clock:       clk,
		loc:         loc,
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.loc)
}

// Adherence computes the rate over every log the patient has.
func (s *Service) Adherence(ctx context.Context, userID uuid.UUID) (adherence.Rate, error) {
	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err != nil {
		return adherence.Rate{}, err
	}

	logs, err := s.doseRepo.List(ctx, dose.Filter{PatientIDs: []uuid.UUID{p.ID}})
	if err != nil {
		return adherence.Rate{}, err
	}
	return adherence.ComputeRate(logs), nil
}

// Summary counts active medicines and today's resolved doses.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (*SummaryResponse, error) {
	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	plans, err := s.planRepo.ListByPatient(ctx, p.ID, true)
	if err != nil {
		return nil, err
	}

	start := schedule.StartOfDay(s.now())
	end := start.AddDate(0, 0, 1)
	logs, err := s.doseRepo.List(ctx, dose.Filter{
		PatientIDs: []uuid.UUID{p.ID},
		From:       &start,
		Before:     &end,
	})
	if err != nil {
		return nil, err
	}

	rate := adherence.ComputeRate(logs)
	return &SummaryResponse{
		ActiveMedicines: len(plans),
		DosesTaken:      rate.Taken,
		DosesMissed:     rate.Missed,
	}, nil
}

func (s *Service) History(ctx context.Context, userID uuid.UUID) (*HistoryResponse, error) {
	p, err := s.patientRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Inactive plans are still needed to name old logs.
	plans, err := s.planRepo.ListByPatient(ctx, p.ID, false)
	if err != nil {
		return nil, err
	}

	logs, err := s.doseRepo.List(ctx, dose.Filter{PatientIDs: []uuid.UUID{p.ID}, Desc: true})
	if err != nil {
		return nil, err
	}

	h := adherence.BuildHistory(plans, logs, s.now())

	byID := make(map[uuid.UUID]*medication.Plan, len(plans))
	for _, plan := range plans {
		byID[plan.ID] = plan
	}

	recent := make([]HistoryLog, 0, len(h.RecentLogs))
	for _, l := range h.RecentLogs {
		entry := HistoryLog{
			ID:               l.ID,
			MedicationPlanID: l.MedicationPlanID,
			MedicationName:   "Unknown",
			SlotIndex:        l.SlotIndex,
			ScheduledAt:      l.ScheduledAt,
			Status:           l.Status,
			TakenAt:          l.TakenAt,
			MissedReason:     l.MissedReason,
		}
		if plan, ok := byID[l.MedicationPlanID]; ok {
			entry.MedicationName = plan.Name
			entry.MedicationStrength = plan.Strength
			entry.MedicationForm = string(plan.Form)
		}
		recent = append(recent, entry)
	}

	return &HistoryResponse{
		Summary: HistorySummary{
			TotalTaken:    h.TotalTaken,
			TotalMissed:   h.TotalMissed,
			AdherenceRate: h.AdherenceRate,
			CurrentStreak: h.CurrentStreak,
		},
		WeeklyTrend: h.WeeklyTrend,
		ByMedicine:  h.ByMedicine,
		RecentLogs:  recent,
	}, nil
}
