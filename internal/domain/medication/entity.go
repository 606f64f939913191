package medication

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Form string

const (
	FormTablet    Form = "tablet"
	FormCapsule   Form = "capsule"
	FormLiquid    Form = "liquid"
	FormInjection Form = "injection"
	FormInhaler   Form = "inhaler"
	FormOther     Form = "other"
)

const (
	MinDosagePerIntake = 0.25
	// LowStockThreshold and CriticalStockThreshold drive refill alerts.
	LowStockThreshold      = 5
	CriticalStockThreshold = 2
)

type Stock struct {
	TotalLoaded    int
	Remaining      int
	LastRefilledAt *time.Time
}

// Plan is one prescribed medicine bound to a dispenser slot.
type Plan struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DeviceID        uuid.UUID
	Name            string
	Strength        string
	Form            Form
	SlotIndex       int
	DosagePerIntake float64
	Times           []string
	DaysOfWeek      []int
	StartDate       time.Time
	EndDate         *time.Time
	Instructions    *string
	Active          bool
	Stock           Stock
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsUnscheduled is true for plans that have no recurrence yet.
func (p *Plan) IsUnscheduled() bool {
	return len(p.Times) == 0 || len(p.DaysOfWeek) == 0
}

// DisplayName joins name and strength, e.g. "Metformin 500mg".
func (p *Plan) DisplayName() string {
	if p.Strength == "" {
		return p.Name
	}
	return p.Name + " " + p.Strength
}

// DosageLabel renders "<n> x <strength>", or "<n> unit" without a strength.
func (p *Plan) DosageLabel() string {
	n := strconv.FormatFloat(p.DosagePerIntake, 'f', -1, 64)
	if p.Strength == "" {
		return fmt.Sprintf("%s unit", n)
	}
	return fmt.Sprintf("%s x %s", n, p.Strength)
}

// Refill adds amount to both the remaining and total counters.
func (p *Plan) Refill(amount int, at time.Time) {
	p.Stock.Remaining += amount
	p.Stock.TotalLoaded += amount
	p.Stock.LastRefilledAt = &at
}

// SetRemaining overwrites the remaining count; total never drops below it.
func (p *Plan) SetRemaining(remaining int) {
	p.Stock.Remaining = remaining
	if p.Stock.TotalLoaded < remaining {
		p.Stock.TotalLoaded = remaining
	}
}

type RefillSeverity string

const (
	SeverityHigh   RefillSeverity = "high"
	SeverityMedium RefillSeverity = "medium"
)

// NeedsRefill reports the alert severity for low stock, if any.
func (p *Plan) NeedsRefill() (RefillSeverity, bool) {
	switch {
	case p.Stock.Remaining <= CriticalStockThreshold:
		return SeverityHigh, true
	case p.Stock.Remaining <= LowStockThreshold:
		return SeverityMedium, true
	default:
		return "", false
	}
}
