package logic

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Persisted keys.
const (
	KeyOccupancyCount    = "occupancy.count"
	KeyOccupancyLastAt   = "occupancy.lastEntryAt"
	KeyDailyStatsDate    = "dailyStats.date"
	KeyDailyStatsEntries = "dailyStats.entries"
	KeyDailyStatsExits   = "dailyStats.exits"
)

// DateLayout is the serialized form of DailyStats.Date.
const DateLayout = "2006-01-02"

// ErrPersist wraps every failed durable write.
var ErrPersist = errors.New("persist")

// Persister is the durable key-value store behind the ledger and the daily
// tracker. Put must write all values atomically; Delete removes keys that may
// or may not exist.
type Persister interface {
	Put(values map[string]string) error
	Delete(keys ...string) error
}

// PersistedState is the decoded form of the durable record.
type PersistedState struct {
	Count       int
	LastEntryAt time.Time
	Daily       DailyStats
}

// DecodeState parses the raw key-value record loaded at startup. Missing keys
// take their zero value; a missing date means "today" in loc.
func DecodeState(values map[string]string, now time.Time, loc *time.Location) (PersistedState, error) {
	var st PersistedState

	var err error
	if st.Count, err = intValue(values, KeyOccupancyCount); err != nil {
		return PersistedState{}, err
	}
	if st.Count < 0 {
		return PersistedState{}, fmt.Errorf("decode %s: negative count %d", KeyOccupancyCount, st.Count)
	}

	if raw, ok := values[KeyOccupancyLastAt]; ok && raw != "" {
		st.LastEntryAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return PersistedState{}, fmt.Errorf("decode %s: %w", KeyOccupancyLastAt, err)
		}
	}

	st.Daily.Date = Today(now, loc)
	if raw, ok := values[KeyDailyStatsDate]; ok && raw != "" {
		if _, err := time.ParseInLocation(DateLayout, raw, loc); err != nil {
			return PersistedState{}, fmt.Errorf("decode %s: %w", KeyDailyStatsDate, err)
		}
		st.Daily.Date = raw
	}
	if st.Daily.Entries, err = intValue(values, KeyDailyStatsEntries); err != nil {
		return PersistedState{}, err
	}
	if st.Daily.Exits, err = intValue(values, KeyDailyStatsExits); err != nil {
		return PersistedState{}, err
	}
	if st.Daily.Entries < 0 || st.Daily.Exits < 0 {
		return PersistedState{}, fmt.Errorf("decode daily stats: negative totals %d/%d", st.Daily.Entries, st.Daily.Exits)
	}

	return st, nil
}

func intValue(values map[string]string, key string) (int, error) {
	raw, ok := values[key]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return n, nil
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(DateLayout)
}

func persistErr(err error) error {
	return fmt.Errorf("%w: %v", ErrPersist, err)
}
