package overview

import (
	"time"

	"github.com/google/uuid"

	"medication-adherence-monitor/internal/domain/dose"
	"medication-adherence-monitor/internal/domain/medication"
)

type RefillAlert struct {
	ID        uuid.UUID                 `json:"id"`
	Name      string                    `json:"name"`
	Patient   string                    `json:"patient"`
	PatientID uuid.UUID                 `json:"patientId"`
	Remaining int                       `json:"remaining"`
	Severity  medication.RefillSeverity `json:"severity"`
}

type ActivityItem struct {
	ID   uuid.UUID `json:"id"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

type ScheduleEntry struct {
	ID        string      `json:"id"`
	PatientID uuid.UUID   `json:"patientId"`
	Patient   string      `json:"patient"`
	Time      time.Time   `json:"time"`
	Med       string      `json:"med"`
	Status    dose.Status `json:"status"`

	unscheduled bool
}

type CaretakerPatient struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	NextDoseTime     *time.Time `json:"nextDoseTime"`
	NextDoseMedicine *string    `json:"nextDoseMedicine"`
	Adherence        int        `json:"adherence"`
	Status           string     `json:"status"`
	Alerts           int        `json:"alerts"`
}

type CaretakerSummary struct {
	PatientCount int `json:"patientCount"`
	DosesToday   int `json:"dosesToday"`
	PendingToday int `json:"pendingToday"`
	AvgAdherence int `json:"avgAdherence"`
}

type CaretakerOverview struct {
	Patients     []CaretakerPatient `json:"patients"`
	Schedule     []ScheduleEntry    `json:"schedule"`
	RefillAlerts []RefillAlert      `json:"refillAlerts"`
	Activity     []ActivityItem     `json:"activity"`
	Summary      CaretakerSummary   `json:"summary"`
}

type DoctorPatient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Diagnosis string    `json:"diagnosis"`
	Adherence int       `json:"adherence"`
}

type ClinicalTask struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patientId"`
	Patient   string    `json:"patient"`
	Task      string    `json:"task"`
	Due       string    `json:"due"`
	Priority  string    `json:"priority"`
}

type DoctorSummary struct {
	PatientCount int `json:"patientCount"`
	DosesToday   int `json:"dosesToday"`
	AvgAdherence int `json:"avgAdherence"`
}

type DoctorOverview struct {
	Patients      []DoctorPatient `json:"patients"`
	ClinicalTasks []ClinicalTask  `json:"clinicalTasks"`
	RefillAlerts  []RefillAlert   `json:"refillAlerts"`
	Activity      []ActivityItem  `json:"activity"`
	Summary       DoctorSummary   `json:"summary"`
}

type AdminCounts struct {
	Patients   int64 `json:"patients"`
	Caretakers int64 `json:"caretakers"`
	Doctors    int64 `json:"doctors"`
	Devices    int64 `json:"devices"`
}

type AdminOverview struct {
	Counts               AdminCounts   `json:"counts"`
	DevicesOnline        int64         `json:"devicesOnline"`
	DevicesOnlinePercent int           `json:"devicesOnlinePercent"`
	MissedToday          int           `json:"missedToday"`
	RefillQueue          []RefillAlert `json:"refillQueue"`
}
