// Package stats collects the per-run metric series: one ordered sequence of
// samples per metric name, frozen once the run completes.
package stats

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

const (
	ChefWaitTimes     = "chef_wait_times"
	DroneWaitTimes    = "drone_wait_times"
	DeliveryTimes     = "delivery_times"
	OrderValues       = "order_values"
	BatteryReadings   = "battery_readings"
	BatteryAtDispatch = "battery_at_dispatch"
	PrepTimes         = "prep_times"
	RoundTripTimes    = "round_trip_times"
)

// Summary condenses one series.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

// Sink appends samples in the order they are recorded. It is owned by a
// single run and is not safe for concurrent use.
type Sink struct {
	series map[string][]float64
	frozen bool
}

func NewSink() *Sink {
	return &Sink{series: make(map[string][]float64)}
}

// Record appends v to metric. Recording into a frozen sink panics.
func (s *Sink) Record(metric string, v float64) {
	if s.frozen {
		logrus.Panicf("stats: record %s after freeze", metric)
	}
	s.series[metric] = append(s.series[metric], v)
}

// Freeze makes the sink read-only.
func (s *Sink) Freeze() {
	s.frozen = true
}

func (s *Sink) Frozen() bool {
	return s.frozen
}

// Series returns a copy of the samples recorded for metric.
func (s *Sink) Series(metric string) []float64 {
	src := s.series[metric]
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// Count returns the number of samples recorded for metric.
func (s *Sink) Count(metric string) int {
	return len(s.series[metric])
}

// Metrics lists the metric names with at least one sample, sorted.
func (s *Sink) Metrics() []string {
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mean returns the arithmetic mean of metric, or NaN when it has no samples.
func (s *Sink) Mean(metric string) float64 {
	vals := s.series[metric]
	if len(vals) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func (s *Sink) Summary(metric string) Summary {
	vals := s.Series(metric)
	if len(vals) == 0 {
		return Summary{}
	}
	sort.Float64s(vals)
	return Summary{
		Count: len(vals),
		Mean:  s.Mean(metric),
		Min:   vals[0],
		Max:   vals[len(vals)-1],
		P50:   percentile(vals, 0.50),
		P95:   percentile(vals, 0.95),
	}
}

// Summaries returns the summary of every metric, keyed by name.
func (s *Sink) Summaries() map[string]Summary {
	out := make(map[string]Summary, len(s.series))
	for name := range s.series {
		out[name] = s.Summary(name)
	}
	return out
}

// MarshalJSON exports every series keyed by metric name.
func (s *Sink) MarshalJSON() ([]byte, error) {
	// encoding/json sorts map keys
	return json.Marshal(s.series)
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
