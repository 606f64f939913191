package report

import (
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/adherence"
	"medication-adherence-monitor/internal/domain/dose"
)

type SummaryResponse struct {
	ActiveMedicines int `json:"activeMedicines"`
	DosesTaken      int `json:"dosesTaken"`
	DosesMissed     int `json:"dosesMissed"`
}

type HistorySummary struct {
	TotalTaken    int `json:"totalTaken"`
	TotalMissed   int `json:"totalMissed"`
	AdherenceRate int `json:"adherenceRate"`
	CurrentStreak int `json:"currentStreak"`
}

// HistoryLog is a recent dose with its plan's display fields.
type HistoryLog struct {
	ID                 uuid.UUID   `json:"id"`
	MedicationPlanID   uuid.UUID   `json:"medicationPlanId"`
	MedicationName     string      `json:"medicationName"`
	MedicationStrength string      `json:"medicationStrength,omitempty"`
	MedicationForm     string      `json:"medicationForm,omitempty"`
	SlotIndex          int         `json:"slotIndex"`
	ScheduledAt        time.Time   `json:"scheduledAt"`
	Status             dose.Status `json:"status"`
	TakenAt            *time.Time  `json:"takenAt"`
	MissedReason       *string     `json:"missedReason,omitempty"`
}

type HistoryResponse struct {
	Summary     HistorySummary                `json:"summary"`
	WeeklyTrend []adherence.DayTrend          `json:"weeklyTrend"`
	ByMedicine  []adherence.MedicineBreakdown `json:"byMedicine"`
	RecentLogs  []HistoryLog                  `json:"recentLogs"`
}
