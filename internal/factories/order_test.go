package factories

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/dronesim/internal/models"
)

// scriptedSampler replays fixed values, repeating the last one.
type scriptedSampler struct {
	preps, values []float64
	points        []models.Point
}

func next[T any](vals *[]T) T {
	v := (*vals)[0]
	if len(*vals) > 1 {
		*vals = (*vals)[1:]
	}
	return v
}

func (s *scriptedSampler) PrepTime() float64 { return next(&s.preps) }
func (s *scriptedSampler) OrderValue() float64 { return next(&s.values) }
func (s *scriptedSampler) Location() models.Point { return next(&s.points) }

func TestCreateOrder(t *testing.T) {
	sampler := &scriptedSampler{
		preps:  []float64{9},
		values: []float64{145},
		points: []models.Point{{X: 3, Y: 4}},
	}
	of := NewOrderFactory(sampler, 42)

	first, err := of.CreateOrder(1.5)
	require.NoError(t, err)
	second, err := of.CreateOrder(2)
	require.NoError(t, err)

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, 1.5, first.ArrivalTime)
	assert.Equal(t, 9.0, first.PrepTime)
	assert.Equal(t, 145.0, first.Value)
	assert.InDelta(t, 5.0, first.Distance, 1e-12)
	assert.Equal(t, models.OrderStatusPlaced, first.Status)
	assert.NotEmpty(t, first.Customer)
}

func TestCreateOrderRedrawsInvalidSamples(t *testing.T) {
	sampler := &scriptedSampler{
		preps:  []float64{math.NaN(), -1, 7},
		values: []float64{math.NaN(), 120},
		points: []models.Point{{X: math.NaN()}, {X: 1, Y: 0}},
	}
	order, err := NewOrderFactory(sampler, 1).CreateOrder(0)
	require.NoError(t, err)

	assert.Equal(t, 7.0, order.PrepTime)
	assert.Equal(t, 120.0, order.Value)
	assert.Equal(t, models.Point{X: 1, Y: 0}, order.Location)
}

func TestCreateOrderGivesUpAfterBoundedRedraws(t *testing.T) {
	tests := []struct {
		name    string
		sampler *scriptedSampler
	}{
		{
			name:    "prep time",
			sampler: &scriptedSampler{preps: []float64{math.NaN()}, values: []float64{1}, points: []models.Point{{}}},
		},
		{
			name:    "order value",
			sampler: &scriptedSampler{preps: []float64{1}, values: []float64{math.Inf(1)}, points: []models.Point{{}}},
		},
		{
			name:    "location",
			sampler: &scriptedSampler{preps: []float64{1}, values: []float64{1}, points: []models.Point{{Y: math.NaN()}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := NewOrderFactory(tt.sampler, 1).CreateOrder(0)
			assert.ErrorIs(t, err, ErrSampling)
			require.NotNil(t, order)
			assert.Equal(t, 1, order.ID)
		})
	}
}

func TestCustomerNamesFollowSeed(t *testing.T) {
	sampler := &scriptedSampler{preps: []float64{1}, values: []float64{1}, points: []models.Point{{}}}
	a, b := NewOrderFactory(sampler, 7), NewOrderFactory(sampler, 7)

	for i := 0; i < 5; i++ {
		oa, err := a.CreateOrder(0)
		require.NoError(t, err)
		ob, err := b.CreateOrder(0)
		require.NoError(t, err)
		assert.Equal(t, oa.Customer, ob.Customer)
	}
}

func TestCreateFleet(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.DroneCount = 4

	drones := (&DroneFactory{}).CreateFleet(cfg)
	require.Len(t, drones, 4)
	for i, d := range drones {
		assert.Equal(t, i, d.ID)
		assert.Equal(t, models.DroneIdleCharged, d.State)
		assert.Equal(t, models.FullBattery, d.Level())
		assert.Equal(t, cfg.ChargeRate, d.Profile.ChargeRate)
	}
}
