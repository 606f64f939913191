package medication

import (
	"time"

	"github.com/google/uuid"

	domainMedication "medication-adherence-monitor/internal/domain/medication"
)

type StockInput struct {
	TotalLoaded int `json:"totalLoaded" validate:"gte=0"`
	Remaining   int `json:"remaining" validate:"gte=0"`
}

type AddMedicineRequest struct {
	MedicationName     string      `json:"medicationName" validate:"required,max=200"`
	MedicationStrength string      `json:"medicationStrength" validate:"omitempty,max=100"`
	MedicationForm     string      `json:"medicationForm" validate:"omitempty,oneof=tablet capsule liquid injection inhaler other"`
	DosagePerIntake    float64     `json:"dosagePerIntake" validate:"required,gte=0.25,quarter_step"`
	SlotIndex          *int        `json:"slotIndex" validate:"required"`
	Times              []string    `json:"times" validate:"required,max=12,dive,hhmm"`
	DaysOfWeek         []int       `json:"daysOfWeek" validate:"omitempty,max=7,dive,weekday"`
	StartDate          *time.Time  `json:"startDate"`
	EndDate            *time.Time  `json:"endDate"`
	Instructions       *string     `json:"instructions" validate:"omitempty,max=1000"`
	Stock              *StockInput `json:"stock"`
}

// UpdateMedicineRequest is a partial update; nil fields are left alone.
type UpdateMedicineRequest struct {
	MedicationName     *string    `json:"medicationName" validate:"omitempty,min=1,max=200"`
	MedicationStrength *string    `json:"medicationStrength" validate:"omitempty,max=100"`
	MedicationForm     *string    `json:"medicationForm" validate:"omitempty,oneof=tablet capsule liquid injection inhaler other"`
	DosagePerIntake    *float64   `json:"dosagePerIntake" validate:"omitempty,gte=0.25,quarter_step"`
	SlotIndex          *int       `json:"slotIndex"`
	Times              *[]string  `json:"times"`
	DaysOfWeek         *[]int     `json:"daysOfWeek"`
	StartDate          *time.Time `json:"startDate"`
	EndDate            *time.Time `json:"endDate"`
	Instructions       *string    `json:"instructions" validate:"omitempty,max=1000"`
	Active             *bool      `json:"active"`
	StockRemaining     *int       `json:"stockRemaining" validate:"omitempty,gte=0"`
}

type RefillRequest struct {
	Amount int `json:"amount" validate:"required,gt=0"`
}

type StockResponse struct {
	TotalLoaded    int        `json:"totalLoaded"`
	Remaining      int        `json:"remaining"`
	LastRefilledAt *time.Time `json:"lastRefilledAt"`
}

type MedicineResponse struct {
	ID                 uuid.UUID     `json:"id"`
	PatientID          uuid.UUID     `json:"patientId"`
	DeviceID           uuid.UUID     `json:"deviceId"`
	MedicationName     string        `json:"medicationName"`
	MedicationStrength string        `json:"medicationStrength"`
	MedicationForm     string        `json:"medicationForm"`
	DosagePerIntake    float64       `json:"dosagePerIntake"`
	SlotIndex          int           `json:"slotIndex"`
	Times              []string      `json:"times"`
	DaysOfWeek         []int         `json:"daysOfWeek"`
	StartDate          time.Time     `json:"startDate"`
	EndDate            *time.Time    `json:"endDate"`
	Instructions       *string       `json:"instructions,omitempty"`
	Active             bool          `json:"active"`
	Unscheduled        bool          `json:"unscheduled"`
	Stock              StockResponse `json:"stock"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

func ToMedicineResponse(p *domainMedication.Plan) *MedicineResponse {
	if p == nil {
		return nil
	}
	times := p.Times
	if times == nil {
		times = []string{}
	}
	days := p.DaysOfWeek
	if days == nil {
		days = []int{}
	}
	return &MedicineResponse{
		ID:                 p.ID,
		PatientID:          p.PatientID,
		DeviceID:           p.DeviceID,
		MedicationName:     p.Name,
		MedicationStrength: p.Strength,
		MedicationForm:     string(p.Form),
		DosagePerIntake:    p.DosagePerIntake,
		SlotIndex:          p.SlotIndex,
		Times:              times,
		DaysOfWeek:         days,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		Instructions:       p.Instructions,
		Active:             p.Active,
		Unscheduled:        p.IsUnscheduled(),
		Stock: StockResponse{
			TotalLoaded:    p.Stock.TotalLoaded,
			Remaining:      p.Stock.Remaining,
			LastRefilledAt: p.Stock.LastRefilledAt,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
