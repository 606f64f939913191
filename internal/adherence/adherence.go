// Package adherence folds dose logs into read-side statistics. Skipped
// doses count as missed everywhere.
package adherence

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/schedule"
)

const (
	MaxStreakDays    = 365
	TrendDays        = 7
	RecentWindowDays = 30
	RecentLimit      = 50
)

type Rate struct {
	Taken        int     `json:"taken"`
	Missed       int     `json:"missed"`
	Rate         float64 `json:"rate"`
	TakenPercent int     `json:"takenPercent"`
}

// ComputeRate returns taken / (taken + missed) as a percentage. Pending,
// dispensed and errored doses are not resolved and do not count.
func ComputeRate(logs []*dose.Log) Rate {
	var r Rate
	for _, l := range logs {
		switch {
		case l.Status == dose.StatusTaken:
			r.Taken++
		case l.Status.CountsAsMissed():
			r.Missed++
		}
	}
	r.Rate = percentage(r.Taken, r.Taken+r.Missed)
	r.TakenPercent = int(math.Round(r.Rate))
	return r
}

// Streak counts consecutive days, ending today, on which every dose was
// taken. A day without logs ends the streak.
func Streak(logs []*dose.Log, today time.Time) int {
	byDay := groupByDay(logs, today.Location())

	streak := 0
	day := schedule.StartOfDay(today)
	for i := 0; i < MaxStreakDays; i++ {
		dayLogs := byDay[dayKey(day)]
		if len(dayLogs) == 0 || !allTaken(dayLogs) {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

type DayTrend struct {
	Day   string `json:"day"`
	Date  string `json:"date"`
	Taken int    `json:"taken"`
	Total int    `json:"total"`
}

// WeeklyTrend returns per-day counts for the last seven days, oldest first.
func WeeklyTrend(logs []*dose.Log, today time.Time) []DayTrend {
	byDay := groupByDay(logs, today.Location())

	start := schedule.StartOfDay(today).AddDate(0, 0, -(TrendDays - 1))
	trend := make([]DayTrend, 0, TrendDays)
	for i := 0; i < TrendDays; i++ {
		day := start.AddDate(0, 0, i)
		dayLogs := byDay[dayKey(day)]
		entry := DayTrend{
			Day:   day.Format("Mon"),
			Date:  dayKey(day),
			Total: len(dayLogs),
		}
		for _, l := range dayLogs {
			if l.Status == dose.StatusTaken {
				entry.Taken++
			}
		}
		trend = append(trend, entry)
	}
	return trend
}

type MedicineBreakdown struct {
	MedicationPlanID uuid.UUID `json:"medicationPlanId"`
	Name             string    `json:"name"`
	Strength         string    `json:"strength"`
	Form             string    `json:"form"`
	Taken            int       `json:"taken"`
	Total            int       `json:"total"`
	AdherenceRate    int       `json:"adherenceRate"`
}

// ByMedicine breaks logs down per active plan, in plan order. Its rate is
// taken over every log of the plan, pending ones included.
func ByMedicine(plans []*medication.Plan, logs []*dose.Log) []MedicineBreakdown {
	byPlan := make(map[uuid.UUID][]*dose.Log)
	for _, l := range logs {
		byPlan[l.MedicationPlanID] = append(byPlan[l.MedicationPlanID], l)
	}

	out := make([]MedicineBreakdown, 0, len(plans))
	for _, p := range plans {
		if !p.Active {
			continue
		}
		planLogs := byPlan[p.ID]
		taken := 0
		for _, l := range planLogs {
			if l.Status == dose.StatusTaken {
				taken++
			}
		}
		out = append(out, MedicineBreakdown{
			MedicationPlanID: p.ID,
			Name:             p.Name,
			Strength:         p.Strength,
			Form:             string(p.Form),
			Taken:            taken,
			Total:            len(planLogs),
			AdherenceRate:    int(math.Round(percentage(taken, len(planLogs)))),
		})
	}
	return out
}

// Recent returns logs scheduled in the last 30 days up to now, newest first,
// capped at 50.
func Recent(logs []*dose.Log, now time.Time) []*dose.Log {
	since := now.AddDate(0, 0, -RecentWindowDays)

	out := make([]*dose.Log, 0, len(logs))
	for _, l := range logs {
		if !l.ScheduledAt.Before(since) && !l.ScheduledAt.After(now) {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledAt.After(out[j].ScheduledAt)
	})
	if len(out) > RecentLimit {
		out = out[:RecentLimit]
	}
	return out
}

type History struct {
	TotalTaken    int                 `json:"totalTaken"`
	TotalMissed   int                 `json:"totalMissed"`
	AdherenceRate int                 `json:"adherenceRate"`
	CurrentStreak int                 `json:"currentStreak"`
	WeeklyTrend   []DayTrend          `json:"weeklyTrend"`
	ByMedicine    []MedicineBreakdown `json:"byMedicine"`
	RecentLogs    []*dose.Log         `json:"-"`
}

// BuildHistory bundles every statistic for a patient's history view.
func BuildHistory(plans []*medication.Plan, logs []*dose.Log, now time.Time) History {
	rate := ComputeRate(logs)
	return History{
		TotalTaken:    rate.Taken,
		TotalMissed:   rate.Missed,
		AdherenceRate: rate.TakenPercent,
		CurrentStreak: Streak(logs, now),
		WeeklyTrend:   WeeklyTrend(logs, now),
		ByMedicine:    ByMedicine(plans, logs),
		RecentLogs:    Recent(logs, now),
	}
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}

func groupByDay(logs []*dose.Log, loc *time.Location) map[string][]*dose.Log {
	out := make(map[string][]*dose.Log)
	for _, l := range logs {
		key := dayKey(l.ScheduledAt.In(loc))
		out[key] = append(out[key], l)
	}
	return out
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func allTaken(logs []*dose.Log) bool {
	for _, l := range logs {
		if l.Status != dose.StatusTaken {
			return false
		}
	}
	return true
}
