package progress

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of a meter.
type Stats struct {
	BytesDone int64
	Total     int64
	RateBps   float64
	ETA       time.Duration
	Percent   float64
	StartedAt time.Time
}

// Meter tracks byte progress reported as absolute positions of many
// independent items (one per peer and file) and computes a smoothed
// aggregate rate.
type Meter struct {
	mu        sync.Mutex
	total     int64
	done      int64
	positions map[string]int64
	startedAt time.Time
	lastAt    time.Time
	lastDone  int64
	rateBps   float64
	alpha     float64
	now       func() time.Time
}

// NewMeter returns a meter using the wall clock.
func NewMeter() *Meter {
	return NewMeterWithNow(time.Now)
}

// NewMeterWithNow returns a meter with a custom time source (for tests).
func NewMeterWithNow(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Meter{
		alpha:     0.2,
		now:       now,
		positions: make(map[string]int64),
		startedAt: t,
		lastAt:    t,
	}
}

// AddTotal grows the number of bytes expected overall.
func (m *Meter) AddTotal(n int64) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total += n
}

// Observe records that item key has reached position current. Positions
// never move backwards; a smaller value is ignored.
func (m *Meter) Observe(key string, current int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta := current - m.positions[key]
	if delta <= 0 {
		return
	}
	m.positions[key] = current
	m.done += delta

	now := m.now()
	elapsed := now.Sub(m.lastAt).Seconds()
	if elapsed <= 0 {
		return
	}
	inst := float64(m.done-m.lastDone) / elapsed
	if m.rateBps == 0 {
		m.rateBps = inst
	} else {
		m.rateBps = m.alpha*inst + (1-m.alpha)*m.rateBps
	}
	m.lastAt = now
	m.lastDone = m.done
}

// Snapshot returns the current stats.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		BytesDone: m.done,
		Total:     m.total,
		RateBps:   m.rateBps,
		StartedAt: m.startedAt,
	}
	if m.total > 0 {
		stats.Percent = float64(m.done) / float64(m.total) * 100
	}
	if m.rateBps > 0 && m.total > m.done {
		remaining := float64(m.total - m.done)
		stats.ETA = time.Duration(remaining / m.rateBps * float64(time.Second))
	}
	return stats
}
