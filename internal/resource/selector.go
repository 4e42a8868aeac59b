package resource

import (
	"github.com/chrisdamba/dronesim/internal/models"
)

// Candidate is an available drone and its battery level at selection time.
type Candidate struct {
	Drone   *models.Drone
	Battery float64
}

// Selector decides which drone serves the longest-waiting request. Candidates
// are never empty and are ordered by drone id. When ready is false the
// request claims pick and waits until its battery reaches ReadyLevel.
type Selector interface {
	Select(candidates []Candidate) (pick Candidate, ready bool)
	ReadyLevel() float64
}

type thresholdSelector struct {
	level float64
}

// FullChargeFirst dispatches the first fully charged drone. Without one, it
// claims the drone with the highest battery (lowest id on ties) and waits for
// its charge to complete.
func FullChargeFirst() Selector {
	return thresholdSelector{level: models.FullBattery}
}

// Threshold behaves like FullChargeFirst, except that a drone at or above
// level leaves immediately and a claimed drone leaves as soon as it gets
// there, interrupting its charge.
func Threshold(level float64) Selector {
	if level >= models.FullBattery {
		return FullChargeFirst()
	}
	return thresholdSelector{level: level}
}

func (s thresholdSelector) ReadyLevel() float64 {
	return s.level
}

func (s thresholdSelector) Select(candidates []Candidate) (Candidate, bool) {
	for _, c := range candidates {
		if c.Battery >= models.FullBattery {
			return c, true
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Battery > best.Battery {
			best = c
		}
	}
	return best, best.Battery >= s.level
}
