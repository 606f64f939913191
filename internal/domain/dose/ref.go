package dose

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ref addresses a dose either by its stored id or by the occurrence it
// would have once persisted.
type Ref interface {
	String() string
	isRef()
}

type PersistedRef struct {
	ID uuid.UUID
}

func (r PersistedRef) String() string { return r.ID.String() }
func (PersistedRef) isRef()           {}

// VirtualRef is a projected occurrence with no log yet. Its string form is
// "<planID>_<epochMillis>".
type VirtualRef struct {
	PlanID      uuid.UUID
	ScheduledAt time.Time
}

func (r VirtualRef) String() string {
	return fmt.Sprintf("%s_%d", r.PlanID, r.ScheduledAt.UnixMilli())
}
func (VirtualRef) isRef() {}

// ParseRef accepts either a log UUID or a "<planID>_<epochMillis>" key.
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidRef
	}

	if i := strings.LastIndexByte(raw, '_'); i >= 0 {
		planID, err := uuid.Parse(raw[:i])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRef, raw)
		}
		ms, err := strconv.ParseInt(raw[i+1:], 10, 64)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRef, raw)
		}
		return VirtualRef{PlanID: planID, ScheduledAt: time.UnixMilli(ms)}, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, raw)
	}
	return PersistedRef{ID: id}, nil
}
