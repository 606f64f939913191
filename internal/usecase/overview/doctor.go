package overview

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/schedule"
)

const noDiagnosis = "—"

// Doctor summarizes the patients that list the doctor, with follow-ups
// raised from their missed doses.
func (s *Service) Doctor(ctx context.Context, doctorID uuid.UUID) (*DoctorOverview, error) {
	patients, err := s.patientRepo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	snaps, err := s.loadSnapshots(ctx, patients, now)
	if err != nil {
		return nil, err
	}

	view := &DoctorOverview{
		Patients:      make([]DoctorPatient, 0, len(snaps)),
		ClinicalTasks: clinicalTasks(snaps, schedule.StartOfDay(now)),
		RefillAlerts:  nonNil(refillAlerts(snaps)),
		Activity:      activity(snaps, now),
	}

	dosesToday := 0
	for _, snap := range snaps {
		diagnosis := snap.patient.MedicalProfile.PrimaryDiagnosis()
		if diagnosis == "" {
			diagnosis = noDiagnosis
		}
		view.Patients = append(view.Patients, DoctorPatient{
			ID:        snap.patient.ID,
			Name:      snap.name,
			Diagnosis: diagnosis,
			Adherence: snap.rate.TakenPercent,
		})
		dosesToday += snap.todayLog
	}

	view.Summary = DoctorSummary{
		PatientCount: len(snaps),
		DosesToday:   dosesToday,
		AvgAdherence: averageAdherence(snaps),
	}
	return view, nil
}

// clinicalTasks turns the most recent missed or skipped doses into review
// tasks. Doses from today are high priority.
func clinicalTasks(snaps []*snapshot, todayStart time.Time) []ClinicalTask {
	type missed struct {
		snap *snapshot
		log  *dose.Log
	}
	var all []missed
	for _, snap := range snaps {
		for _, l := range snap.recent {
			if l.Status.CountsAsMissed() {
				all = append(all, missed{snap: snap, log: l})
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].log.ScheduledAt.After(all[j].log.ScheduledAt)
	})
	if len(all) > ClinicalTaskLimit {
		all = all[:ClinicalTaskLimit]
	}

	out := make([]ClinicalTask, 0, len(all))
	for _, m := range all {
		task := ClinicalTask{
			ID:        m.log.ID,
			PatientID: m.snap.patient.ID,
			Patient:   m.snap.name,
			Task:      fmt.Sprintf("Review missed dose for %s", medicineName(m.snap.plans, m.log.MedicationPlanID)),
			Due:       "Upcoming",
			Priority:  "medium",
		}
		if !m.log.ScheduledAt.Before(todayStart) {
			task.Due = "Today"
			task.Priority = "high"
		}
		out = append(out, task)
	}
	return out
}
