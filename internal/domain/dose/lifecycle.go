package dose

import (
	"fmt"
	"time"
)

// State machine for dose status transitions
var validTransitions = map[Status][]Status{
	StatusPending: {
		StatusDispensed,
		StatusTaken,
		StatusMissed,
		StatusSkipped,
		StatusError,
	},
	StatusDispensed: {
		StatusTaken,
		StatusPending, // Unconfirmed dispense decays back
		StatusMissed,
		StatusSkipped,
	},
	StatusError: {
		StatusPending, // Device recovered
		StatusMissed,
	},
	StatusTaken:   {},
	StatusMissed:  {},
	StatusSkipped: {},
}

// ValidateTransition checks that from -> to is allowed. A transition to the
// current status is reported as allowed; callers treat it as a no-op.
func ValidateTransition(from, to Status) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("%w: unknown current status %q", ErrInvalidTransition, from)
	}
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return nil
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidTransition, from, to)
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current Status) []Status {
	return validTransitions[current]
}

// Apply moves l to status "to" at now and stamps the matching timestamp.
// It returns false when l already had that status.
func Apply(l *Log, to Status, now time.Time, reason string) (bool, error) {
	if err := ValidateTransition(l.Status, to); err != nil {
		return false, err
	}
	if l.Status == to {
		return false, nil
	}

	switch to {
	case StatusDispensed:
		l.DispensedAt = &now
	case StatusPending:
		l.DispensedAt = nil
	case StatusTaken:
		l.TakenAt = &now
	case StatusMissed, StatusSkipped, StatusError:
		l.TakenAt = nil
		if reason != "" {
			l.MissedReason = &reason
		}
	}

	l.Status = to
	l.UpdatedAt = now
	return true, nil
}
