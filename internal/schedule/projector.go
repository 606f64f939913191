// Package schedule expands medication plans into concrete dose times.
//
// Everything here is pure: callers pass the reference time, already
// converted to the location doses should be projected in.
package schedule

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"medication-adherence-monitor/internal/domain/medication"
)

// Occurrence is one projected dose of a plan.
type Occurrence struct {
	Plan        *medication.Plan
	ScheduledAt time.Time
}

// AdjustedWeekday numbers days Monday=1 .. Sunday=7.
func AdjustedWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// ParseClock parses "HH:MM". Hours and minutes must be in range.
func ParseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Project returns plan's occurrences on the calendar day containing day,
// sorted by time with duplicates removed. Unscheduled plans, plans outside
// their start/end window and plans not active on that weekday yield none.
func Project(plan *medication.Plan, day time.Time) []Occurrence {
	if plan == nil || plan.IsUnscheduled() {
		return nil
	}

	midnight := StartOfDay(day)
	if !withinValidity(plan, midnight) {
		return nil
	}
	if !containsDay(plan.DaysOfWeek, AdjustedWeekday(midnight)) {
		return nil
	}

	y, mo, d := midnight.Date()
	seen := make(map[int]struct{}, len(plan.Times))
	out := make([]Occurrence, 0, len(plan.Times))
	for _, raw := range plan.Times {
		h, m, ok := ParseClock(raw)
		if !ok {
			continue
		}
		minuteOfDay := h*60 + m
		if _, dup := seen[minuteOfDay]; dup {
			continue
		}
		seen[minuteOfDay] = struct{}{}

		out = append(out, Occurrence{
			Plan:        plan,
			ScheduledAt: time.Date(y, mo, d, h, m, 0, 0, midnight.Location()),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// ProjectWindow projects every plan over the days touching (after, until]
// and keeps the occurrences inside that interval, ordered by time. Plans
// keep their relative order on equal times.
func ProjectWindow(plans []*medication.Plan, after, until time.Time) []Occurrence {
	if !until.After(after) {
		return nil
	}

	var out []Occurrence
	lastDay := StartOfDay(until)
	for day := StartOfDay(after); !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		for _, plan := range plans {
			if plan == nil || !plan.Active {
				continue
			}
			for _, occ := range Project(plan, day) {
				if occ.ScheduledAt.After(after) && !occ.ScheduledAt.After(until) {
					out = append(out, occ)
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// Occurs reports whether plan has an occurrence exactly at "at" when
// projected in loc.
func Occurs(plan *medication.Plan, at time.Time, loc *time.Location) bool {
	local := at.In(loc)
	for _, occ := range Project(plan, local) {
		if occ.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

func withinValidity(plan *medication.Plan, midnight time.Time) bool {
	loc := midnight.Location()
	if !plan.StartDate.IsZero() && midnight.Before(StartOfDay(plan.StartDate.In(loc))) {
		return false
	}
	if plan.EndDate != nil && midnight.After(StartOfDay(plan.EndDate.In(loc))) {
		return false
	}
	return true
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
