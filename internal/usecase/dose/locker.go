package dose

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Locker serializes reconciliation and marks per device.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func deviceLockKey(deviceID uuid.UUID) string {
	return "reconcile:" + deviceID.String()
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// localLocker is an in-process Locker for single-instance deployments. A
// key's slot is dropped once no caller holds or waits on it.
type localLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

func NewLocalLocker() Locker {
	return &localLocker{slots: make(map[string]*lockSlot)}
}

func (l *localLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(key, slot)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, slot)
		return nil, ctx.Err()
	}
}

func (l *localLocker) release(key string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 && l.slots[key] == slot {
		delete(l.slots, key)
	}
}

func (l *localLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
