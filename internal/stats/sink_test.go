package stats

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkKeepsRecordingOrder(t *testing.T) {
	s := NewSink()
	for _, v := range []float64{3, 1, 2} {
		s.Record(ChefWaitTimes, v)
	}
	s.Record(OrderValues, 145)

	assert.Equal(t, []float64{3, 1, 2}, s.Series(ChefWaitTimes))
	assert.Equal(t, []string{ChefWaitTimes, OrderValues}, s.Metrics())
	assert.Equal(t, 0, s.Count(DeliveryTimes))
	assert.Empty(t, s.Series(DeliveryTimes))
}

func TestSinkSeriesIsACopy(t *testing.T) {
	s := NewSink()
	s.Record(PrepTimes, 9)

	got := s.Series(PrepTimes)
	got[0] = 100
	assert.Equal(t, []float64{9}, s.Series(PrepTimes))
}

func TestSinkFreeze(t *testing.T) {
	s := NewSink()
	s.Record(DroneWaitTimes, 0)
	s.Freeze()

	assert.True(t, s.Frozen())
	assert.Panics(t, func() { s.Record(DroneWaitTimes, 1) })
	assert.Equal(t, []float64{0}, s.Series(DroneWaitTimes))
}

func TestSinkSummary(t *testing.T) {
	s := NewSink()
	for i := 1; i <= 11; i++ {
		s.Record(DeliveryTimes, float64(12-i))
	}

	sum := s.Summary(DeliveryTimes)
	assert.Equal(t, 11, sum.Count)
	assert.InDelta(t, 6.0, sum.Mean, 1e-9)
	assert.Equal(t, 1.0, sum.Min)
	assert.Equal(t, 11.0, sum.Max)
	assert.InDelta(t, 6.0, sum.P50, 1e-9)
	assert.InDelta(t, 10.5, sum.P95, 1e-9)

	assert.Equal(t, Summary{}, s.Summary(RoundTripTimes))
	assert.True(t, math.IsNaN(s.Mean(RoundTripTimes)))
	assert.Contains(t, s.Summaries(), DeliveryTimes)
}

func TestSinkMarshalJSON(t *testing.T) {
	s := NewSink()
	s.Record(OrderValues, 120.5)
	s.Record(BatteryReadings, 88)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"battery_readings":[88],"order_values":[120.5]}`, string(raw))
	assert.Less(t, strings.Index(string(raw), BatteryReadings), strings.Index(string(raw), OrderValues))
}

