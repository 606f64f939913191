package dose

import (
	"sort"
	"time"

	domainDose "medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
	"medication-adherence-monitor/internal/schedule"
)

const pendingPrefix = "pending_"

// DaySchedule merges the day's projected occurrences of plans with the stored
// logs of that day. Occurrences without a log become virtual items keyed
// "<planID>_<epochMillis>". Unscheduled plans add one pending item each,
// sorted after everything else. It performs no writes.
func DaySchedule(plans []*medication.Plan, logs []*domainDose.Log, day time.Time) []ScheduleItem {
	byKey := make(map[domainDose.Key]*domainDose.Log, len(logs))
	for _, l := range logs {
		byKey[l.Key()] = l
	}

	var items []ScheduleItem
	for _, plan := range plans {
		if plan == nil || !plan.Active {
			continue
		}

		if plan.IsUnscheduled() {
			item := planItem(plan)
			item.ID = pendingPrefix + plan.ID.String()
			item.ScheduledAt = day
			item.Status = domainDose.StatusPending
			item.IsPendingMedicine = true
			items = append(items, item)
			continue
		}

		for _, occ := range schedule.Project(plan, day) {
			item := planItem(plan)
			item.ScheduledAt = occ.ScheduledAt

			if l, ok := byKey[domainDose.NewKey(plan.ID, occ.ScheduledAt)]; ok {
				item.ID = l.ID.String()
				item.SlotIndex = l.SlotIndex
				item.Status = l.Status
				item.DispensedAt = l.DispensedAt
				item.TakenAt = l.TakenAt
				item.Persisted = true
			} else {
				item.ID = domainDose.VirtualRef{PlanID: plan.ID, ScheduledAt: occ.ScheduledAt}.String()
				item.Status = domainDose.StatusPending
			}
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsPendingMedicine != b.IsPendingMedicine {
			return !a.IsPendingMedicine
		}
		if a.IsPendingMedicine {
			return false
		}
		return a.ScheduledAt.Before(b.ScheduledAt)
	})
	return items
}

func planItem(plan *medication.Plan) ScheduleItem {
	return ScheduleItem{
		MedicationPlanID: plan.ID,
		MedicineName:     plan.Name,
		Strength:         plan.Strength,
		Form:             plan.Form,
		Dosage:           plan.DosageLabel(),
		SlotIndex:        plan.SlotIndex,
	}
}
