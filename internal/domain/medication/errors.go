package medication

import "errors"

var (
	ErrPlanNotFound    = errors.New("medication not found")
	ErrSlotOccupied    = errors.New("slot already has an active medication")
	ErrSlotOutOfRange  = errors.New("slot is outside the device's slot range")
	ErrInvalidSchedule = errors.New("invalid medication schedule")
)
