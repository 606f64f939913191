package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	domainUser "medication-adherence-monitor/internal/domain/user"
	"medication-adherence-monitor/internal/infrastructure/notify/email"
	"medication-adherence-monitor/internal/testutil"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func TestNotifyMissed_EmailsApprovedCaretakers(t *testing.T) {
	ctx := context.Background()
	users := testutil.NewUserRepo()
	patients := testutil.NewPatientRepo()
	plans := testutil.NewPlanRepo()

	owner := users.Add(&domainUser.User{Name: "Grace", Email: "grace@example.com", Role: domainUser.RolePatient, IsActive: true})
	approved := users.Add(&domainUser.User{Name: "Alan", Email: "alan@example.com", Role: domainUser.RoleCaretaker, IsActive: true})
	pending := users.Add(&domainUser.User{Name: "Joan", Email: "joan@example.com", Role: domainUser.RoleCaretaker, IsActive: true})

	p := &patient.Patient{UserID: owner.ID}
	if err := patients.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	_ = patients.AddCaretaker(ctx, p.ID, patient.CaretakerLink{CaretakerID: approved.ID, Approved: true})
	_ = patients.AddCaretaker(ctx, p.ID, patient.CaretakerLink{CaretakerID: pending.ID})

	plan := &medication.Plan{PatientID: p.ID, Name: "Metformin", Strength: "500mg", SlotIndex: 1, Active: true}
	if err := plans.Create(ctx, plan); err != nil {
		t.Fatal(err)
	}

	sender := &fakeSender{}
	svc := NewService(patients, users, plans, sender, nil, time.UTC)

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	svc.NotifyMissed(ctx, []*domainDose.Log{
		{ID: uuid.New(), PatientID: p.ID, MedicationPlanID: plan.ID, ScheduledAt: at, Status: domainDose.StatusMissed},
	})
	svc.Wait()

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if len(msg.To) != 1 || msg.To[0] != "alan@example.com" {
		t.Errorf("recipients = %v", msg.To)
	}
	if !strings.Contains(msg.Subject, "Grace") {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "Metformin 500mg") || !strings.Contains(msg.TextBody, "08:00") {
		t.Errorf("body = %q", msg.TextBody)
	}
}

func TestNotifyMissed_NoCaretakersOrDisabled(t *testing.T) {
	ctx := context.Background()
	users := testutil.NewUserRepo()
	patients := testutil.NewPatientRepo()
	plans := testutil.NewPlanRepo()

	owner := users.Add(&domainUser.User{Name: "Grace", Role: domainUser.RolePatient, IsActive: true})
	p := &patient.Patient{UserID: owner.ID}
	_ = patients.Create(ctx, p)

	sender := &fakeSender{}
	svc := NewService(patients, users, plans, sender, nil, time.UTC)
	svc.NotifyMissed(ctx, []*domainDose.Log{{PatientID: p.ID, MedicationPlanID: uuid.New()}})
	svc.Wait()
	if len(sender.sent) != 0 {
		t.Fatalf("no caretakers, yet %d emails sent", len(sender.sent))
	}

	caretaker := users.Add(&domainUser.User{Name: "Alan", Email: "alan@example.com", IsActive: true})
	_ = patients.AddCaretaker(ctx, p.ID, patient.CaretakerLink{CaretakerID: caretaker.ID, Approved: true})

	disabled := &fakeSender{err: email.ErrDisabled}
	svc = NewService(patients, users, plans, disabled, nil, time.UTC)
	svc.NotifyMissed(ctx, []*domainDose.Log{{PatientID: p.ID, MedicationPlanID: uuid.New()}})
	svc.Wait()

	failing := &fakeSender{err: errors.New("smtp down")}
	svc = NewService(patients, users, plans, failing, nil, time.UTC)
	svc.NotifyMissed(ctx, []*domainDose.Log{{PatientID: p.ID, MedicationPlanID: uuid.New()}})
	svc.Wait()
}
