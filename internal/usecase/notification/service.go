// Package notification emails approved caretakers when the reconciler marks
// a patient's doses missed.
package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	domainUser "medication-adherence-monitor/internal/domain/user"
	"medication-adherence-monitor/internal/infrastructure/notify/email"
	"medication-adherence-monitor/internal/logger"
	"medication-adherence-monitor/internal/metrics"
)

const DefaultSendTimeout = 15 * time.Second

// Outcomes recorded per delivery attempt.
const (
	OutcomeSent     = "sent"
	OutcomeFailed   = "failed"
	OutcomeDisabled = "disabled"
	OutcomeSkipped  = "skipped"
)

type Sender interface {
	Send(ctx context.Context, m email.Message) error
}

type Service struct {
	patientRepo patient.Repository
	userRepo    domainUser.Repository
	planRepo    medication.Repository
	sender      Sender
	metrics     *metrics.Metrics
	location    *time.Location
	timeout     time.Duration

	wg sync.WaitGroup
}

func NewService(
	patientRepo patient.Repository,
	userRepo domainUser.Repository,
	planRepo medication.Repository,
	sender Sender,
	m *metrics.Metrics,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		patientRepo: patientRepo,
		userRepo:    userRepo,
		planRepo:    planRepo,
		sender:      sender,
		metrics:     m,
		location:    loc,
		timeout:     DefaultSendTimeout,
	}
}

// NotifyMissed returns immediately; delivery runs in the background and
// outlives the caller's request context.
func (s *Service) NotifyMissed(ctx context.Context, logs []*domainDose.Log) {
	if len(logs) == 0 || s.sender == nil {
		return
	}

	byPatient := make(map[uuid.UUID][]*domainDose.Log)
	for _, l := range logs {
		byPatient[l.PatientID] = append(byPatient[l.PatientID], l)
	}

	base := context.WithoutCancel(ctx)
	for patientID, patientLogs := range byPatient {
		s.wg.Add(1)
		go func(patientID uuid.UUID, patientLogs []*domainDose.Log) {
			defer s.wg.Done()

			sendCtx, cancel := context.WithTimeout(base, s.timeout)
			defer cancel()

			if err := s.notifyPatient(sendCtx, patientID, patientLogs); err != nil {
				logger.Error("Failed to send missed dose notification",
					zap.String("patient_id", patientID.String()),
					zap.Error(err),
				)
			}
		}(patientID, patientLogs)
	}
}

// Wait blocks until every in-flight notification has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) notifyPatient(ctx context.Context, patientID uuid.UUID, logs []*domainDose.Log) error {
	p, err := s.patientRepo.GetByID(ctx, patientID)
	if err != nil {
		return err
	}

	links := p.ApprovedCaretakers()
	if len(links) == 0 {
		s.metrics.Notification(OutcomeSkipped)
		return nil
	}

	ids := make([]uuid.UUID, 0, len(links)+1)
	ids = append(ids, p.UserID)
	for _, link := range links {
		ids = append(ids, link.CaretakerID)
	}
	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*domainUser.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	patientName := "Your patient"
	if u, ok := byID[p.UserID]; ok {
		patientName = u.Name
	}

	lines, err := s.doseLines(ctx, logs)
	if err != nil {
		return err
	}

	var errs []error
	for _, link := range links {
		caretaker, ok := byID[link.CaretakerID]
		if !ok || !caretaker.IsActive || caretaker.Email == "" {
			continue
		}

		msg := email.BuildMissedDoseEmail(caretaker.Email, email.MissedDoseData{
			CaretakerName: caretaker.Name,
			PatientName:   patientName,
			Doses:         lines,
			Location:      s.location,
		})

		err := s.sender.Send(ctx, msg)
		switch {
		case errors.Is(err, email.ErrDisabled):
			s.metrics.Notification(OutcomeDisabled)
			return nil
		case err != nil:
			s.metrics.Notification(OutcomeFailed)
			errs = append(errs, err)
		default:
			s.metrics.Notification(OutcomeSent)
			logger.Info("Missed dose notification sent",
				zap.String("patient_id", patientID.String()),
				zap.String("caretaker_id", caretaker.ID.String()),
				zap.Int("doses", len(lines)),
				zap.String("event", "missed_dose_notified"),
			)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) doseLines(ctx context.Context, logs []*domainDose.Log) ([]email.MissedDoseLine, error) {
	names := make(map[uuid.UUID]string)
	lines := make([]email.MissedDoseLine, 0, len(logs))
	for _, l := range logs {
		name, ok := names[l.MedicationPlanID]
		if !ok {
			plan, err := s.planRepo.GetByID(ctx, l.MedicationPlanID)
			switch {
			case errors.Is(err, medication.ErrPlanNotFound):
				name = "Unknown medicine"
			case err != nil:
				return nil, err
			default:
				name = plan.DisplayName()
			}
			names[l.MedicationPlanID] = name
		}
		lines = append(lines, email.MissedDoseLine{Medicine: name, ScheduledAt: l.ScheduledAt})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].ScheduledAt.Before(lines[j].ScheduledAt)
	})
	return lines, nil
}
