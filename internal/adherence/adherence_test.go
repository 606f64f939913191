package adherence

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func logAt(planID uuid.UUID, at time.Time, status dose.Status) *dose.Log {
	return &dose.Log{ID: uuid.New(), MedicationPlanID: planID, ScheduledAt: at, Status: status}
}

func daysAgo(n int, hour int) time.Time {
	d := now.AddDate(0, 0, -n)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func TestComputeRate(t *testing.T) {
	planID := uuid.New()

	tests := []struct {
		name        string
		logs        []*dose.Log
		wantRate    float64
		wantPercent int
		wantTaken   int
		wantMissed  int
	}{
		{name: "no logs", logs: nil, wantRate: 0, wantPercent: 0},
		{
			name: "three taken one missed",
			logs: []*dose.Log{
				logAt(planID, daysAgo(0, 8), dose.StatusTaken),
				logAt(planID, daysAgo(1, 8), dose.StatusTaken),
				logAt(planID, daysAgo(2, 8), dose.StatusTaken),
				logAt(planID, daysAgo(3, 8), dose.StatusMissed),
			},
			wantRate: 75.00, wantPercent: 75, wantTaken: 3, wantMissed: 1,
		},
		{
			name: "skipped counts as missed, pending ignored",
			logs: []*dose.Log{
				logAt(planID, daysAgo(0, 8), dose.StatusTaken),
				logAt(planID, daysAgo(0, 9), dose.StatusSkipped),
				logAt(planID, daysAgo(0, 10), dose.StatusMissed),
				logAt(planID, daysAgo(0, 11), dose.StatusPending),
				logAt(planID, daysAgo(0, 12), dose.StatusError),
			},
			wantRate: 33.33, wantPercent: 33, wantTaken: 1, wantMissed: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRate(tt.logs)
			if got.Rate != tt.wantRate || got.TakenPercent != tt.wantPercent {
				t.Errorf("rate = %v/%d, want %v/%d", got.Rate, got.TakenPercent, tt.wantRate, tt.wantPercent)
			}
			if got.Taken != tt.wantTaken || got.Missed != tt.wantMissed {
				t.Errorf("counts = %d/%d, want %d/%d", got.Taken, got.Missed, tt.wantTaken, tt.wantMissed)
			}
		})
	}
}

func TestStreak(t *testing.T) {
	planID := uuid.New()

	tests := []struct {
		name string
		logs []*dose.Log
		want int
	}{
		{
			name: "three taken days then a miss",
			logs: []*dose.Log{
				logAt(planID, daysAgo(0, 8), dose.StatusTaken),
				logAt(planID, daysAgo(1, 8), dose.StatusTaken),
				logAt(planID, daysAgo(1, 20), dose.StatusTaken),
				logAt(planID, daysAgo(2, 8), dose.StatusTaken),
				logAt(planID, daysAgo(3, 8), dose.StatusMissed),
				logAt(planID, daysAgo(4, 8), dose.StatusTaken),
			},
			want: 3,
		},
		{
			name: "gap day ends the streak",
			logs: []*dose.Log{
				logAt(planID, daysAgo(0, 8), dose.StatusTaken),
				logAt(planID, daysAgo(2, 8), dose.StatusTaken),
			},
			want: 1,
		},
		{
			name: "pending dose today breaks it",
			logs: []*dose.Log{
				logAt(planID, daysAgo(0, 8), dose.StatusTaken),
				logAt(planID, daysAgo(0, 20), dose.StatusPending),
				logAt(planID, daysAgo(1, 8), dose.StatusTaken),
			},
			want: 0,
		},
		{name: "nothing logged", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Streak(tt.logs, now); got != tt.want {
				t.Errorf("Streak = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStreak_CappedAtOneYear(t *testing.T) {
	planID := uuid.New()
	var logs []*dose.Log
	for i := 0; i < 400; i++ {
		logs = append(logs, logAt(planID, daysAgo(i, 8), dose.StatusTaken))
	}
	if got := Streak(logs, now); got != MaxStreakDays {
		t.Fatalf("Streak = %d, want %d", got, MaxStreakDays)
	}
}

func TestWeeklyTrend(t *testing.T) {
	planID := uuid.New()
	logs := []*dose.Log{
		logAt(planID, daysAgo(0, 8), dose.StatusTaken),
		logAt(planID, daysAgo(0, 20), dose.StatusPending),
		logAt(planID, daysAgo(6, 8), dose.StatusMissed),
		logAt(planID, daysAgo(7, 8), dose.StatusTaken), // outside the week
	}

	trend := WeeklyTrend(logs, now)
	if len(trend) != TrendDays {
		t.Fatalf("len = %d", len(trend))
	}
	if trend[0].Date != "2024-05-04" || trend[6].Date != "2024-05-10" {
		t.Errorf("unexpected range %s..%s", trend[0].Date, trend[6].Date)
	}
	if trend[6].Day != "Fri" || trend[6].Taken != 1 || trend[6].Total != 2 {
		t.Errorf("today = %+v", trend[6])
	}
	if trend[0].Taken != 0 || trend[0].Total != 1 {
		t.Errorf("oldest = %+v", trend[0])
	}
}

func TestByMedicine(t *testing.T) {
	active := &medication.Plan{ID: uuid.New(), Name: "Aspirin", Strength: "81mg", Form: medication.FormTablet, Active: true}
	paused := &medication.Plan{ID: uuid.New(), Name: "Old", Active: false}

	logs := []*dose.Log{
		logAt(active.ID, daysAgo(0, 8), dose.StatusTaken),
		logAt(active.ID, daysAgo(1, 8), dose.StatusMissed),
		logAt(active.ID, daysAgo(1, 9), dose.StatusPending),
		logAt(paused.ID, daysAgo(1, 8), dose.StatusTaken),
	}

	got := ByMedicine([]*medication.Plan{active, paused}, logs)
	if len(got) != 1 {
		t.Fatalf("expected only the active plan, got %d", len(got))
	}
	if got[0].Name != "Aspirin" || got[0].Taken != 1 || got[0].Total != 3 || got[0].AdherenceRate != 33 {
		t.Errorf("unexpected breakdown %+v", got[0])
	}
}

func TestByMedicine_RateOverTotal(t *testing.T) {
	tests := []struct {
		name     string
		statuses []dose.Status
		wantRate int
	}{
		{"no logs", nil, 0},
		{"pending counts toward total", []dose.Status{dose.StatusTaken, dose.StatusPending, dose.StatusPending, dose.StatusPending}, 25},
		{"all taken", []dose.Status{dose.StatusTaken, dose.StatusTaken}, 100},
		{"rounds half up", []dose.Status{dose.StatusTaken, dose.StatusMissed, dose.StatusSkipped, dose.StatusPending, dose.StatusPending, dose.StatusPending, dose.StatusPending, dose.StatusPending}, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &medication.Plan{ID: uuid.New(), Name: "Metformin", Active: true}
			var logs []*dose.Log
			for i, st := range tt.statuses {
				logs = append(logs, logAt(plan.ID, daysAgo(i, 8), st))
			}

			got := ByMedicine([]*medication.Plan{plan}, logs)
			if len(got) != 1 {
				t.Fatalf("len = %d", len(got))
			}
			if got[0].Total != len(tt.statuses) {
				t.Errorf("total = %d, want %d", got[0].Total, len(tt.statuses))
			}
			if got[0].AdherenceRate != tt.wantRate {
				t.Errorf("adherenceRate = %d, want %d", got[0].AdherenceRate, tt.wantRate)
			}
		})
	}
}

func TestRecent(t *testing.T) {
	planID := uuid.New()
	var logs []*dose.Log
	for i := 0; i < 40; i++ {
		logs = append(logs, logAt(planID, daysAgo(i, 8), dose.StatusTaken))
		logs = append(logs, logAt(planID, daysAgo(i, 9), dose.StatusTaken))
	}
	logs = append(logs, logAt(planID, now.Add(time.Hour), dose.StatusPending))

	got := Recent(logs, now)
	if len(got) != RecentLimit {
		t.Fatalf("len = %d, want %d", len(got), RecentLimit)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ScheduledAt.After(got[i-1].ScheduledAt) {
			t.Fatal("expected newest first")
		}
	}
	if got[0].ScheduledAt.After(now) {
		t.Error("future logs must be excluded")
	}
}
