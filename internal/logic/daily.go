package logic

import (
	"strconv"
	"time"
)

// DailyStatsTracker counts entries and exits for the current calendar date in
// loc. Any operation that observes a stale date resets both totals first.
type DailyStatsTracker struct {
	loc   *time.Location
	stats DailyStats
	store Persister
}

// NewDailyStatsTracker seeds a tracker from persisted stats.
func NewDailyStatsTracker(loc *time.Location, store Persister, seed DailyStats) *DailyStatsTracker {
	if loc == nil {
		loc = time.Local
	}
	return &DailyStatsTracker{loc: loc, stats: seed, store: store}
}

// RecordEntry rolls over if needed, then counts one entry.
func (d *DailyStatsTracker) RecordEntry(now time.Time) error {
	next := d.rolled(now)
	next.Entries++
	return d.commit(next)
}

// RecordExit rolls over if needed, then counts one exit.
func (d *DailyStatsTracker) RecordExit(now time.Time) error {
	next := d.rolled(now)
	next.Exits++
	return d.commit(next)
}

// Reset zeroes both totals for today and removes the persisted daily keys.
// Occupancy is not affected.
func (d *DailyStatsTracker) Reset(now time.Time) error {
	err := d.store.Delete(KeyDailyStatsDate, KeyDailyStatsEntries, KeyDailyStatsExits)
	if err != nil {
		return persistErr(err)
	}
	d.stats = DailyStats{Date: Today(now, d.loc)}
	return nil
}

// Current returns today's totals, persisting a rollover first if the stored
// date is stale. If that write fails the zeroed stats are still returned, so a
// reader never sees yesterday's totals under today's date.
func (d *DailyStatsTracker) Current(now time.Time) (DailyStats, error) {
	next := d.rolled(now)
	if next == d.stats {
		return d.stats, nil
	}
	if err := d.commit(next); err != nil {
		return next, err
	}
	return d.stats, nil
}

func (d *DailyStatsTracker) rolled(now time.Time) DailyStats {
	today := Today(now, d.loc)
	if d.stats.Date == today {
		return d.stats
	}
	return DailyStats{Date: today}
}

func (d *DailyStatsTracker) commit(next DailyStats) error {
	err := d.store.Put(map[string]string{
		KeyDailyStatsDate:    next.Date,
		KeyDailyStatsEntries: strconv.Itoa(next.Entries),
		KeyDailyStatsExits:   strconv.Itoa(next.Exits),
	})
	if err != nil {
		return persistErr(err)
	}
	d.stats = next
	return nil
}
