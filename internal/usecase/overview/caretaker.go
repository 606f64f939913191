package overview

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/logger"
)

// Caretaker summarizes every patient that approved the caretaker's link.
func (s *Service) Caretaker(ctx context.Context, caretakerID uuid.UUID) (*CaretakerOverview, error) {
	patients, err := s.patientRepo.ListByApprovedCaretaker(ctx, caretakerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	snaps, err := s.loadSnapshots(ctx, patients, now)
	if err != nil {
		return nil, err
	}

	var entries []ScheduleEntry
	var pending int
	view := &CaretakerOverview{
		Patients: make([]CaretakerPatient, 0, len(snaps)),
	}

	for _, snap := range snaps {
		cp := CaretakerPatient{
			ID:        snap.patient.ID,
			Name:      snap.name,
			Adherence: snap.rate.TakenPercent,
			Status:    StatusNeedsAttention,
			Alerts:    snap.rate.Missed,
		}
		if cp.Adherence >= OnTrackThreshold {
			cp.Status = StatusOnTrack
		}

		for _, item := range snap.today {
			if item.Status == dose.StatusPending {
				pending++
				if cp.NextDoseTime == nil && !item.IsPendingMedicine {
					at, name := item.ScheduledAt, item.MedicineName
					cp.NextDoseTime = &at
					cp.NextDoseMedicine = &name
				}
			}
			entries = append(entries, ScheduleEntry{
				ID:        item.ID,
				PatientID: snap.patient.ID,
				Patient:   snap.name,
				Time:      item.ScheduledAt,
				Med:       item.MedicineName,
				Status:    item.Status,

				unscheduled: item.IsPendingMedicine,
			})
		}
		view.Patients = append(view.Patients, cp)
	}

	view.Summary = CaretakerSummary{
		PatientCount: len(snaps),
		DosesToday:   len(entries),
		PendingToday: pending,
		AvgAdherence: averageAdherence(snaps),
	}
	view.Schedule = mergedSchedule(entries)
	view.RefillAlerts = nonNil(refillAlerts(snaps))
	view.Activity = activity(snaps, now)

	logger.Debug("Caretaker overview built",
		zap.String("caretaker_id", caretakerID.String()),
		zap.Int("patients", len(snaps)),
		zap.String("event", "caretaker_overview"),
	)

	return view, nil
}

// mergedSchedule orders entries from every patient by time, with
// unscheduled medicines last, and keeps the first ScheduleLimit.
func mergedSchedule(entries []ScheduleEntry) []ScheduleEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].unscheduled != entries[j].unscheduled {
			return !entries[i].unscheduled
		}
		return entries[i].Time.Before(entries[j].Time)
	})
	if len(entries) > ScheduleLimit {
		entries = entries[:ScheduleLimit]
	}
	if entries == nil {
		entries = []ScheduleEntry{}
	}
	return entries
}

func nonNil(alerts []RefillAlert) []RefillAlert {
	if alerts == nil {
		return []RefillAlert{}
	}
	return alerts
}
