package dose

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/adherence"
	"medication-adherence-monitor/internal/clock"
	"medication-adherence-monitor/internal/domain/device"
	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/domain/patient"
	"medication-adherence-monitor/internal/testutil"
)

// 2024-05-01 is a Wednesday.
var wednesday8am = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	logs []*domainDose.Log
}

func (n *recordingNotifier) NotifyMissed(_ context.Context, logs []*domainDose.Log) {
	n.mu.Lock()
	n.logs = append(n.logs, logs...)
	n.mu.Unlock()
}

type fixture struct {
	svc      *Service
	clock    *clock.Fixed
	doses    *testutil.DoseRepo
	plans    *testutil.PlanRepo
	patients *testutil.PatientRepo
	devices  *testutil.DeviceRepo
	notifier *recordingNotifier

	userID  uuid.UUID
	patient *patient.Patient
	device  *device.Device
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		clock:    clock.NewFixed(now),
		doses:    testutil.NewDoseRepo(),
		plans:    testutil.NewPlanRepo(),
		patients: testutil.NewPatientRepo(),
		devices:  testutil.NewDeviceRepo(),
		notifier: &recordingNotifier{},
		userID:   uuid.New(),
	}

	f.device = &device.Device{DeviceID: "DISP-001", SlotCount: 4}
	if err := f.devices.Create(ctx, f.device); err != nil {
		t.Fatal(err)
	}
	f.patient = &patient.Patient{UserID: f.userID, DeviceID: &f.device.ID}
	if err := f.patients.Create(ctx, f.patient); err != nil {
		t.Fatal(err)
	}

	f.svc = NewService(f.doses, f.plans, f.patients, f.devices, testutil.NoopTx{}, Options{
		Location: time.UTC,
		Clock:    f.clock,
		Notifier: f.notifier,
	})
	return f
}

func (f *fixture) addPlan(t *testing.T, slot int, times []string, days []int) *medication.Plan {
	t.Helper()
	p := &medication.Plan{
		PatientID:       f.patient.ID,
		DeviceID:        f.device.ID,
		Name:            "Metformin",
		Strength:        "500mg",
		Form:            medication.FormTablet,
		SlotIndex:       slot,
		DosagePerIntake: 1,
		Times:           times,
		DaysOfWeek:      days,
		StartDate:       time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Active:          true,
		Stock:           medication.Stock{TotalLoaded: 5, Remaining: 5},
	}
	if err := f.plans.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

var everyDay = []int{1, 2, 3, 4, 5, 6, 7}

func TestUpcoming_NaturalKeyUniqueness(t *testing.T) {
	f := newFixture(t, wednesday8am)
	f.addPlan(t, 1, []string{"08:00", "20:00"}, everyDay)
	ctx := context.Background()

	first, err := f.svc.Upcoming(ctx, "DISP-001")
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	second, err := f.svc.Upcoming(ctx, "DISP-001")
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}

	// (07:30, 08:00 tomorrow] holds today 08:00, today 20:00 and tomorrow 08:00.
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 doses per call, got %d and %d", len(first), len(second))
	}
	if n := f.doses.Count(); n != 3 {
		t.Fatalf("expected 3 stored logs, got %d", n)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("dose %d changed id between calls: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}

	seen := map[domainDose.Key]bool{}
	for _, l := range f.doses.Logs {
		if seen[l.Key()] {
			t.Fatalf("duplicate natural key %+v", l.Key())
		}
		seen[l.Key()] = true
	}
}

func TestUpcoming_OrderAndShape(t *testing.T) {
	f := newFixture(t, wednesday8am)
	f.addPlan(t, 2, []string{"20:00"}, everyDay)
	f.addPlan(t, 1, []string{"12:00"}, everyDay)

	got, err := f.svc.Upcoming(context.Background(), "DISP-001")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 doses, got %d", len(got))
	}
	if got[0].ScheduledTime != "12:00" || got[1].ScheduledTime != "20:00" {
		t.Errorf("unexpected order: %s, %s", got[0].ScheduledTime, got[1].ScheduledTime)
	}
	if got[0].Slot != 1 || got[0].Status != domainDose.StatusPending {
		t.Errorf("unexpected first dose: %+v", got[0])
	}
	if got[0].Dosage != "1 x 500mg" {
		t.Errorf("dosage = %q", got[0].Dosage)
	}
}

func TestUpcoming_UnknownDevice(t *testing.T) {
	f := newFixture(t, wednesday8am)

	if _, err := f.svc.Upcoming(context.Background(), "nope"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := f.svc.Upcoming(context.Background(), "  "); err == nil {
		t.Fatal("expected validation error for blank device id")
	}
}

func TestReconcile_DispensedDecay(t *testing.T) {
	f := newFixture(t, wednesday8am.Add(-5*time.Minute))
	f.addPlan(t, 1, []string{"08:00"}, everyDay)
	ctx := context.Background()

	doses, err := f.svc.Upcoming(ctx, "DISP-001")
	if err != nil {
		t.Fatal(err)
	}
	target := doses[0].ID

	if _, err := f.svc.MarkForDevice(ctx, DeviceMark{Ref: target.String(), Status: domainDose.StatusDispensed, DeviceID: "DISP-001"}); err != nil {
		t.Fatalf("dispense: %v", err)
	}

	f.clock.Advance(4 * time.Minute)
	if _, err := f.svc.Upcoming(ctx, "DISP-001"); err != nil {
		t.Fatal(err)
	}
	l, _ := f.doses.GetByID(ctx, target)
	if l.Status != domainDose.StatusDispensed {
		t.Fatalf("within retry window: status = %s", l.Status)
	}

	f.clock.Advance(2 * time.Minute)
	if _, err := f.svc.Upcoming(ctx, "DISP-001"); err != nil {
		t.Fatal(err)
	}
	l, _ = f.doses.GetByID(ctx, target)
	if l.Status != domainDose.StatusPending || l.DispensedAt != nil {
		t.Fatalf("after 6m: status = %s dispensedAt = %v", l.Status, l.DispensedAt)
	}
}

func TestReconcile_MissedAfterGrace(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    domainDose.Status
	}{
		{"29 minutes late", 29 * time.Minute, domainDose.StatusPending},
		{"31 minutes late", 31 * time.Minute, domainDose.StatusMissed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, wednesday8am.Add(-5*time.Minute))
			plan := f.addPlan(t, 1, []string{"08:00"}, everyDay)
			ctx := context.Background()

			if _, err := f.svc.Upcoming(ctx, "DISP-001"); err != nil {
				t.Fatal(err)
			}

			f.clock.Set(wednesday8am.Add(tt.elapsed))
			if _, err := f.svc.Upcoming(ctx, "DISP-001"); err != nil {
				t.Fatal(err)
			}

			l, err := f.doses.GetByNaturalKey(ctx, plan.ID, wednesday8am)
			if err != nil {
				t.Fatal(err)
			}
			if l.Status != tt.want {
				t.Fatalf("status = %s, want %s", l.Status, tt.want)
			}

			notified := len(f.notifier.logs)
			if tt.want == domainDose.StatusMissed {
				if notified != 1 {
					t.Fatalf("expected 1 notification, got %d", notified)
				}
				if l.MissedReason == nil || *l.MissedReason != MissedReasonGrace {
					t.Errorf("missedReason = %v", l.MissedReason)
				}
			} else if notified != 0 {
				t.Fatalf("unexpected notifications: %d", notified)
			}
		})
	}
}

func TestReconcile_DecayedDoseStillCaughtByGrace(t *testing.T) {
	f := newFixture(t, wednesday8am)
	plan := f.addPlan(t, 1, []string{"08:00"}, everyDay)
	ctx := context.Background()

	dispensedAt := wednesday8am
	f.doses.Add(&domainDose.Log{
		PatientID:        f.patient.ID,
		DeviceID:         f.device.ID,
		MedicationPlanID: plan.ID,
		SlotIndex:        1,
		ScheduledAt:      wednesday8am,
		Status:           domainDose.StatusDispensed,
		DispensedAt:      &dispensedAt,
	})

	f.clock.Set(wednesday8am.Add(45 * time.Minute))
	if _, err := f.svc.Upcoming(ctx, "DISP-001"); err != nil {
		t.Fatal(err)
	}

	l, _ := f.doses.GetByNaturalKey(ctx, plan.ID, wednesday8am)
	if l.Status != domainDose.StatusMissed || l.DispensedAt != nil {
		t.Fatalf("status = %s dispensedAt = %v", l.Status, l.DispensedAt)
	}
}

func TestMarkForPatient_VirtualIsIdempotent(t *testing.T) {
	f := newFixture(t, wednesday8am.Add(-time.Hour))
	plan := f.addPlan(t, 1, []string{"08:00"}, everyDay)
	ctx := context.Background()

	ref := domainDose.VirtualRef{PlanID: plan.ID, ScheduledAt: wednesday8am}.String()

	first, err := f.svc.MarkForPatient(ctx, f.userID, ref, domainDose.StatusTaken)
	if err != nil {
		t.Fatalf("mark taken: %v", err)
	}
	f.clock.Advance(time.Minute)
	second, err := f.svc.MarkForPatient(ctx, f.userID, ref, domainDose.StatusTaken)
	if err != nil {
		t.Fatalf("re-mark taken: %v", err)
	}

	if f.doses.Count() != 1 {
		t.Fatalf("expected exactly one log, got %d", f.doses.Count())
	}
	if first.ID != second.ID {
		t.Errorf("re-mark materialized a new log")
	}
	if second.Status != domainDose.StatusTaken || !second.ScheduledAt.Equal(wednesday8am) {
		t.Errorf("unexpected log: %+v", second)
	}
	if !second.TakenAt.Equal(*first.TakenAt) {
		t.Errorf("takenAt moved on no-op re-mark")
	}
}

func TestMarkForPatient_Errors(t *testing.T) {
	f := newFixture(t, wednesday8am)
	plan := f.addPlan(t, 1, []string{"08:00"}, everyDay)
	ctx := context.Background()
	ref := domainDose.VirtualRef{PlanID: plan.ID, ScheduledAt: wednesday8am}.String()

	if _, err := f.svc.MarkForPatient(ctx, f.userID, ref, domainDose.StatusTaken); err != nil {
		t.Fatal(err)
	}

	other := &patient.Patient{UserID: uuid.New()}
	if err := f.patients.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		userID uuid.UUID
		ref    string
		to     domainDose.Status
		want   error
	}{
		{"terminal re-mark", f.userID, ref, domainDose.StatusMissed, domainDose.ErrInvalidTransition},
		{"unsupported action", f.userID, ref, domainDose.StatusDispensed, domainDose.ErrUnsupportedAction},
		{"malformed ref", f.userID, "garbage", domainDose.StatusTaken, domainDose.ErrInvalidRef},
		{"off-schedule virtual", f.userID, domainDose.VirtualRef{PlanID: plan.ID, ScheduledAt: wednesday8am.Add(5 * time.Minute)}.String(), domainDose.StatusTaken, domainDose.ErrDoseNotFound},
		{"unknown plan", f.userID, domainDose.VirtualRef{PlanID: uuid.New(), ScheduledAt: wednesday8am}.String(), domainDose.StatusTaken, domainDose.ErrDoseNotFound},
		{"other patient's dose", other.UserID, ref, domainDose.StatusMissed, domainDose.ErrDoseNotFound},
		{"no patient profile", uuid.New(), ref, domainDose.StatusTaken, patient.ErrPatientNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.MarkForPatient(ctx, tt.userID, tt.ref, tt.to)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMarkForDevice_ScopedToDevice(t *testing.T) {
	f := newFixture(t, wednesday8am)
	plan := f.addPlan(t, 1, []string{"08:00"}, everyDay)
	ctx := context.Background()

	if err := f.devices.Create(ctx, &device.Device{DeviceID: "DISP-002"}); err != nil {
		t.Fatal(err)
	}
	ref := domainDose.VirtualRef{PlanID: plan.ID, ScheduledAt: wednesday8am}.String()

	_, err := f.svc.MarkForDevice(ctx, DeviceMark{Ref: ref, Status: domainDose.StatusSkipped, DeviceID: "DISP-002"})
	if !errors.Is(err, domainDose.ErrDoseNotFound) {
		t.Fatalf("foreign device: expected ErrDoseNotFound, got %v", err)
	}

	l, err := f.svc.MarkForDevice(ctx, DeviceMark{Ref: ref, Status: domainDose.StatusSkipped, DeviceID: "DISP-001", Reason: "patient declined"})
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != domainDose.StatusSkipped || l.TakenAt != nil {
		t.Errorf("unexpected log: %+v", l)
	}
	if l.MissedReason == nil || *l.MissedReason != "patient declined" {
		t.Errorf("reason not recorded: %v", l.MissedReason)
	}

	if _, err := f.svc.MarkForDevice(ctx, DeviceMark{Ref: ref, Status: domainDose.StatusMissed}); !errors.Is(err, domainDose.ErrUnsupportedAction) {
		t.Errorf("devices cannot mark missed, got %v", err)
	}
}

func TestToday_OrdersPendingMedicinesLast(t *testing.T) {
	f := newFixture(t, wednesday8am)
	evening := f.addPlan(t, 1, []string{"20:00"}, everyDay)
	morning := f.addPlan(t, 2, []string{"08:00"}, []int{1, 3, 5})
	unscheduled := f.addPlan(t, 3, nil, nil)
	f.addPlan(t, 4, []string{"09:00"}, []int{2})
	ctx := context.Background()

	taken, err := f.svc.MarkForPatient(ctx, f.userID,
		domainDose.VirtualRef{PlanID: morning.ID, ScheduledAt: wednesday8am}.String(), domainDose.StatusTaken)
	if err != nil {
		t.Fatal(err)
	}

	items, err := f.svc.Today(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d: %+v", len(items), items)
	}

	if items[0].MedicationPlanID != morning.ID || !items[0].Persisted || items[0].ID != taken.ID.String() || items[0].Status != domainDose.StatusTaken {
		t.Errorf("first item should be the taken morning dose: %+v", items[0])
	}
	if items[1].MedicationPlanID != evening.ID || items[1].Persisted || items[1].Status != domainDose.StatusPending {
		t.Errorf("second item should be the virtual evening dose: %+v", items[1])
	}
	if _, err := domainDose.ParseRef(items[1].ID); err != nil {
		t.Errorf("virtual id %q does not parse: %v", items[1].ID, err)
	}
	if !items[2].IsPendingMedicine || !strings.HasPrefix(items[2].ID, "pending_") || items[2].MedicationPlanID != unscheduled.ID {
		t.Errorf("last item should be the unscheduled plan: %+v", items[2])
	}

	if f.doses.Count() != 1 {
		t.Errorf("Today must not write, stored logs = %d", f.doses.Count())
	}
}

func TestEndToEnd_ScheduleMarkAdherence(t *testing.T) {
	f := newFixture(t, wednesday8am.Add(-2*time.Hour))
	f.addPlan(t, 1, []string{"08:00"}, []int{3})
	ctx := context.Background()

	items, err := f.svc.Today(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Status != domainDose.StatusPending || !items[0].ScheduledAt.Equal(wednesday8am) {
		t.Fatalf("unexpected schedule: %+v", items)
	}

	f.clock.Set(wednesday8am.Add(2 * time.Minute))
	l, err := f.svc.MarkForPatient(ctx, f.userID, items[0].ID, domainDose.StatusTaken)
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != domainDose.StatusTaken || l.TakenAt == nil {
		t.Fatalf("unexpected log: %+v", l)
	}

	logs, err := f.doses.List(ctx, domainDose.Filter{PatientIDs: []uuid.UUID{f.patient.ID}})
	if err != nil {
		t.Fatal(err)
	}
	rate := adherence.ComputeRate(logs)
	if rate.Taken != 1 || rate.Missed != 0 || rate.Rate != 100 {
		t.Fatalf("unexpected adherence: %+v", rate)
	}
}

func TestDeviceHistory(t *testing.T) {
	f := newFixture(t, wednesday8am)
	plan := f.addPlan(t, 1, []string{"08:00"}, everyDay)
	ctx := context.Background()

	for i, status := range []domainDose.Status{domainDose.StatusTaken, domainDose.StatusMissed, domainDose.StatusSkipped} {
		f.doses.Add(&domainDose.Log{
			PatientID:        f.patient.ID,
			DeviceID:         f.device.ID,
			MedicationPlanID: plan.ID,
			SlotIndex:        1,
			ScheduledAt:      wednesday8am.AddDate(0, 0, -(i + 1)),
			Status:           status,
		})
	}
	f.doses.Add(&domainDose.Log{
		DeviceID:         f.device.ID,
		MedicationPlanID: plan.ID,
		ScheduledAt:      wednesday8am.AddDate(0, 0, -10),
		Status:           domainDose.StatusMissed,
	})

	missed, err := f.svc.DeviceHistory(ctx, "DISP-001", domainDose.StatusMissed, domainDose.StatusSkipped)
	if err != nil {
		t.Fatal(err)
	}
	if len(missed) != 2 {
		t.Fatalf("expected 2 missed/skipped in the last week, got %d", len(missed))
	}
	if !missed[0].ScheduledAt.After(missed[1].ScheduledAt) {
		t.Error("history should be newest first")
	}
	if missed[0].MedicineName != "Metformin" {
		t.Errorf("medicine name = %q", missed[0].MedicineName)
	}
}

func TestLocalLocker_SerializesAndHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	other, err := l.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("independent keys must not block: %v", err)
	}
	other()

	unlock()
	again, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	again()
}

func TestMark_WaitsForDeviceLock(t *testing.T) {
	f := newFixture(t, wednesday8am.Add(-time.Hour))
	plan := f.addPlan(t, 1, []string{"08:00"}, everyDay)

	locker := NewLocalLocker()
	f.svc = NewService(f.doses, f.plans, f.patients, f.devices, testutil.NoopTx{}, Options{
		Location: time.UTC,
		Clock:    f.clock,
		Locker:   locker,
	})
	ref := domainDose.VirtualRef{PlanID: plan.ID, ScheduledAt: wednesday8am}.String()

	unlock, err := locker.Lock(context.Background(), deviceLockKey(f.device.ID))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.svc.MarkForPatient(ctx, f.userID, ref, domainDose.StatusTaken); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected mark to block on the device lock, got %v", err)
	}
	if f.doses.Count() != 0 {
		t.Fatalf("blocked mark must not write, got %d logs", f.doses.Count())
	}

	unlock()
	if _, err := f.svc.MarkForPatient(context.Background(), f.userID, ref, domainDose.StatusTaken); err != nil {
		t.Fatalf("mark after unlock: %v", err)
	}
}

func TestLocalLocker_DropsIdleKeys(t *testing.T) {
	l := NewLocalLocker().(*localLocker)

	unlock, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "a"); err == nil {
		t.Fatal("expected second lock to time out")
	}
	if l.size() != 1 {
		t.Fatalf("held key should stay, size = %d", l.size())
	}

	unlock()
	unlock()
	if l.size() != 0 {
		t.Fatalf("idle key should be dropped, size = %d", l.size())
	}
}
