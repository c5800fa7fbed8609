package service

import (
	"sync"
	"time"

	"airmon-server/internal/modules/airquality/types"
)

// Aggregator accumulates readings into the current hour's bucket and turns a
// completed bucket into an HourlySummary. It holds no clock of its own; the
// caller decides when to check for rollover. The ingest path (read loop) and
// the rollover path (ticker) run concurrently, so all bucket access is
// serialized behind one mutex.
type Aggregator struct {
	mu           sync.Mutex
	start        time.Time // bucket open time, truncated to the hour
	readings     []types.Reading
	lastRollover time.Time
}

// NewAggregator opens the first bucket at now's hour boundary.
func NewAggregator(now time.Time) *Aggregator {
	return &Aggregator{
		start:        now.Truncate(time.Hour),
		lastRollover: now,
	}
}

// Ingest appends a reading to the current bucket.
func (a *Aggregator) Ingest(r types.Reading) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readings = append(a.readings, r)
	return len(a.readings)
}

// MaybeRollover performs a rollover when one is due: either the wall clock
// crossed an hour boundary since the last rollover, or more than an hour
// elapsed since it (covers missed boundary checks after process suspension).
// The two conditions collapse into one check so a boundary can never fire
// twice. Returns nil when not due or when the bucket is empty.
func (a *Aggregator) MaybeRollover(now time.Time) *types.HourlySummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	crossedBoundary := now.Truncate(time.Hour).After(a.lastRollover.Truncate(time.Hour))
	overdue := now.Sub(a.lastRollover) >= time.Hour
	if !crossedBoundary && !overdue {
		return nil
	}
	if len(a.readings) == 0 {
		// Nothing to summarize, but the window still moves so the next
		// reading lands in the hour it was captured in.
		a.start = now.Truncate(time.Hour)
		a.lastRollover = now
		return nil
	}
	return a.rolloverLocked(now)
}

// Rollover closes the current bucket unconditionally. An empty bucket is a
// no-op: no summary, and the bucket start does not advance.
func (a *Aggregator) Rollover(now time.Time) *types.HourlySummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rolloverLocked(now)
}

func (a *Aggregator) rolloverLocked(now time.Time) *types.HourlySummary {
	if len(a.readings) == 0 {
		return nil
	}

	s := &types.HourlySummary{
		HourStart:      a.start,
		PM1Avg:         meanOf(a.readings, func(r types.Reading) *float64 { return r.PM1 }),
		PM25Avg:        meanOf(a.readings, func(r types.Reading) *float64 { return &r.PM25 }),
		PM10Avg:        meanOf(a.readings, func(r types.Reading) *float64 { return r.PM10 }),
		TemperatureAvg: meanOf(a.readings, func(r types.Reading) *float64 { return &r.Temperature }),
		HumidityAvg:    meanOf(a.readings, func(r types.Reading) *float64 { return &r.Humidity }),
		SampleCount:    len(a.readings),
	}
	if s.PM25Avg != nil {
		aqi := types.AQIFromPM25(*s.PM25Avg)
		s.AQI = &aqi
	}

	a.readings = nil
	a.start = now.Truncate(time.Hour)
	a.lastRollover = now
	return s
}

// Progress reports how far the current collection hour has advanced, measured
// from the bucket's first reading. Empty bucket: zero samples, a full hour
// remaining.
func (a *Aggregator) Progress(now time.Time) types.Progress {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.readings) == 0 {
		return types.Progress{SamplesCollected: 0, Remaining: 3600, Progress: 0}
	}

	elapsed := now.Sub(a.readings[0].Time).Seconds()
	remaining := 3600 - elapsed
	if remaining < 0 {
		remaining = 0
	}
	progress := elapsed / 3600 * 100
	if progress > 100 {
		progress = 100
	}
	return types.Progress{
		SamplesCollected: len(a.readings),
		Remaining:        int(remaining),
		Progress:         progress,
	}
}

func meanOf(readings []types.Reading, pick func(types.Reading) *float64) *float64 {
	var sum float64
	var n int
	for _, r := range readings {
		if v := pick(r); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	return &mean
}
