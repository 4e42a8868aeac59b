package resource

import "github.com/chrisdamba/dronesim/internal/engine"

// Accounting integrates occupancy over time. Update must be called before
// the occupancy changes so the elapsed interval is charged at the old counts.
type Accounting struct {
	BusyTime   float64
	QueueTime  float64
	LastUpdate engine.VTime
}

// Update charges the interval since the last update at the given counts.
func (a *Accounting) Update(now engine.VTime, occupied, queued int) {
	elapsed := float64(now - a.LastUpdate)
	if elapsed > 0 {
		a.BusyTime += float64(occupied) * elapsed
		a.QueueTime += float64(queued) * elapsed
	}
	a.LastUpdate = now
}

// Utilization is the busy time as a share of capacity over [0, now].
func (a *Accounting) Utilization(now engine.VTime, capacity int) float64 {
	if now <= 0 || capacity <= 0 {
		return 0
	}
	return a.BusyTime / (float64(now) * float64(capacity))
}
