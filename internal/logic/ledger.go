package logic

import (
	"strconv"
	"time"
)

// OccupancyLedger holds the number of parked vehicles. It keeps
// 0 <= count <= capacity and writes through to the Persister on every change.
type OccupancyLedger struct {
	count       int
	capacity    int
	lastEntryAt time.Time
	store       Persister
}

// NewOccupancyLedger seeds a ledger from persisted state. A persisted count
// above capacity (capacity lowered in config) is clamped in memory only; the
// next successful mutation writes the clamped value.
func NewOccupancyLedger(capacity int, store Persister, count int, lastEntryAt time.Time) *OccupancyLedger {
	if count > capacity {
		count = capacity
	}
	if count < 0 {
		count = 0
	}
	return &OccupancyLedger{
		count:       count,
		capacity:    capacity,
		lastEntryAt: lastEntryAt,
		store:       store,
	}
}

// Admit records one vehicle entering. It returns false without mutating when
// the lot is full. On a failed write the in-memory state is left untouched and
// the error wraps ErrPersist.
func (l *OccupancyLedger) Admit(now time.Time) (bool, error) {
	if l.count >= l.capacity {
		return false, nil
	}
	next := l.count + 1
	err := l.store.Put(map[string]string{
		KeyOccupancyCount:  strconv.Itoa(next),
		KeyOccupancyLastAt: now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return false, persistErr(err)
	}
	l.count = next
	l.lastEntryAt = now
	return true, nil
}

// Release records one vehicle leaving. It returns false without mutating when
// the lot is already empty.
func (l *OccupancyLedger) Release() (bool, error) {
	if l.count <= 0 {
		return false, nil
	}
	next := l.count - 1
	if err := l.store.Put(map[string]string{KeyOccupancyCount: strconv.Itoa(next)}); err != nil {
		return false, persistErr(err)
	}
	l.count = next
	return true, nil
}

// HasCapacity is the entry lane's permission predicate.
func (l *OccupancyLedger) HasCapacity() bool {
	return l.count < l.capacity
}

// Occupied is the exit lane's permission predicate.
func (l *OccupancyLedger) Occupied() bool {
	return l.count > 0
}

// Count returns the current number of parked vehicles.
func (l *OccupancyLedger) Count() int {
	return l.count
}

// Snapshot returns a copy of the ledger.
func (l *OccupancyLedger) Snapshot() Occupancy {
	return Occupancy{
		Count:       l.count,
		Capacity:    l.capacity,
		LastEntryAt: l.lastEntryAt,
	}
}
