package simulator

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/dronesim/internal/engine"
	"github.com/chrisdamba/dronesim/internal/models"
	"github.com/chrisdamba/dronesim/internal/stats"
)

// testSampler replays inter-arrival gaps and then stops generating; every
// order gets the same attributes.
type testSampler struct {
	gaps     []float64
	prep     float64
	value    float64
	location models.Point
}

func (ts *testSampler) InterArrival() float64 {
	if len(ts.gaps) == 0 {
		return math.MaxFloat64
	}
	gap := ts.gaps[0]
	ts.gaps = ts.gaps[1:]
	return gap
}

func (ts *testSampler) PrepTime() float64      { return ts.prep }
func (ts *testSampler) OrderValue() float64    { return ts.value }
func (ts *testSampler) Location() models.Point { return ts.location }

type recordingOutput struct {
	topics []string
	msgs   []map[string]interface{}
	closed bool
}

func (r *recordingOutput) WriteMessage(topic string, msg []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(msg, &m); err != nil {
		return err
	}
	r.topics = append(r.topics, topic)
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recordingOutput) Close() error {
	r.closed = true
	return nil
}

func (r *recordingOutput) count(topic string) int {
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func testConfig() *models.Config {
	cfg := models.DefaultConfig()
	cfg.OutputFormat = models.OutputNone
	return cfg
}

func runSim(t *testing.T, cfg *models.Config, opts ...Option) (*Result, *recordingOutput) {
	t.Helper()
	out := &recordingOutput{}
	sim, err := NewSimulator(cfg, append([]Option{WithOutput(out)}, opts...)...)
	require.NoError(t, err)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	return res, out
}

func TestSingleOrderScenario(t *testing.T) {
	cfg := testConfig()
	cfg.ChefCount = 1
	cfg.DroneCount = 1
	cfg.Horizon = 100

	sampler := &testSampler{gaps: []float64{1}, prep: 5, value: 150}
	res, out := runSim(t, cfg, WithSampler(sampler))

	require.Len(t, res.Orders, 1)
	o := res.Orders[0]
	assert.Equal(t, 1, o.ID)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	assert.Equal(t, 0.0, o.ChefWait())
	assert.Equal(t, 0.0, o.DroneWait())

	roundTrip := cfg.LoadTime + 2*cfg.TakeoffTime + 2*cfg.LandTime + cfg.PickupTime
	assert.InDelta(t, roundTrip, o.RoundTrip(), 1e-9)
	assert.InDelta(t, 5+cfg.LoadTime+cfg.TakeoffTime+cfg.LandTime, o.DeliveryTime(), 1e-9)

	assert.Equal(t, []float64{0}, res.Stats.Series(stats.ChefWaitTimes))
	assert.Equal(t, []float64{0}, res.Stats.Series(stats.DroneWaitTimes))
	assert.Equal(t, []float64{150}, res.Stats.Series(stats.OrderValues))
	assert.Equal(t, []float64{100}, res.Stats.Series(stats.BatteryAtDispatch))
	assert.InDeltaSlice(t, []float64{90}, res.Stats.Series(stats.BatteryReadings), 1e-9)

	assert.Equal(t, []string{
		TopicOrderPlaced,
		TopicOrderPreparation,
		TopicDroneDispatch,
		TopicOrderDelivery,
		TopicDroneRelease,
		TopicDroneCharged,
	}, out.topics)
	// 10% back at 4% a minute after release at 12
	assert.InDelta(t, 14.5, out.msgs[5]["sim_time"], 1e-9)
	assert.Equal(t, res.RunID, out.msgs[0]["run_id"])
	assert.False(t, out.closed, "caller-owned output stays open")

	assert.Equal(t, 100.0, res.EndTime)
	assert.InDelta(t, roundTrip, res.FleetBusyTime, 1e-9)
	assert.InDelta(t, 5.0, res.ChefBusyTime, 1e-9)
	assert.InDelta(t, 0.05, res.ChefUtilization, 1e-9)
}

func TestTimestampsAndCapacityInvariants(t *testing.T) {
	cfg := testConfig()
	cfg.ChefCount = 2
	cfg.DroneCount = 3
	cfg.ArrivalRate = 0.5
	cfg.Horizon = 240

	out := &recordingOutput{}
	sim, err := NewSimulator(cfg, WithOutput(out))
	require.NoError(t, err)

	var chefBusy, fleetBusy float64
	events := 0
	sim.engine.AcceptHook(engine.HookFunc(func(ctx engine.HookCtx) {
		events++
		assert.LessOrEqual(t, sim.chefs.Active(), sim.chefs.Capacity())
		assert.LessOrEqual(t, sim.fleet.BusyCount(), sim.fleet.Capacity())
		assert.GreaterOrEqual(t, sim.chefs.BusyTime(), chefBusy)
		assert.GreaterOrEqual(t, sim.fleet.BusyTime(), fleetBusy)
		chefBusy, fleetBusy = sim.chefs.BusyTime(), sim.fleet.BusyTime()
	}))

	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.Orders)
	assert.Positive(t, events)

	for i, o := range res.Orders {
		assert.True(t, o.TimestampsOrdered(), "order %d", o.ID)
		assert.LessOrEqual(t, o.ArrivalTime, cfg.Horizon)
		if i > 0 {
			assert.Greater(t, o.ID, res.Orders[i-1].ID)
			assert.GreaterOrEqual(t, o.ArrivalTime, res.Orders[i-1].ArrivalTime)
		}
	}
	assert.Equal(t, len(res.Orders), res.Stats.Count(stats.BatteryReadings))
	assert.Equal(t, len(res.Orders), res.Stats.Count(stats.RoundTripTimes))
	assert.Equal(t, res.Issued, len(res.Orders)+res.InFlight+res.Aborted)
	assert.Equal(t, res.Issued, out.count(TopicOrderPlaced))
	assert.LessOrEqual(t, res.ChefUtilization, 1.0)
	assert.LessOrEqual(t, res.FleetUtilization, 1.0)
}

func TestBatteryLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.Horizon = 240
	res, _ := runSim(t, cfg)
	require.NotEmpty(t, res.Orders)

	for _, o := range res.Orders {
		drain := 2 * (cfg.TakeoffDrain + o.Distance*cfg.PerKmDrain + cfg.LandDrain)
		assert.InDelta(t, o.BatteryAtDispatch-drain, o.BatteryAtReturn, 1e-9, "order %d", o.ID)
		assert.Equal(t, models.FullBattery, o.BatteryAtDispatch, "full-charge-first never sends a partial drone")
	}
}

func TestRunsAreDeterministic(t *testing.T) {
	cfg := testConfig()
	first, _ := runSim(t, cfg)
	second, _ := runSim(t, cfg)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Stats.Metrics(), second.Stats.Metrics())
	for _, metric := range first.Stats.Metrics() {
		assert.Equal(t, first.Stats.Series(metric), second.Stats.Series(metric), metric)
	}
	require.Equal(t, len(first.Orders), len(second.Orders))
	for i := range first.Orders {
		assert.Equal(t, first.Orders[i].Customer, second.Orders[i].Customer)
	}

	other := testConfig()
	other.Seed = cfg.Seed + 1
	third, _ := runSim(t, other)
	assert.NotEqual(t, first.Stats.Series(stats.OrderValues), third.Stats.Series(stats.OrderValues))
}

func TestHorizonCutsOffInFlightOrders(t *testing.T) {
	gaps := func() []float64 {
		g := make([]float64, 20)
		for i := range g {
			g[i] = 1
		}
		return g
	}

	cfg := testConfig()
	cfg.ChefCount = 1
	cfg.Horizon = 10
	res, _ := runSim(t, cfg, WithSampler(&testSampler{gaps: gaps(), prep: 5}))

	assert.Equal(t, 10, res.Issued, "arrivals at 1..10 only")
	assert.Equal(t, 10.0, res.EndTime)
	assert.Positive(t, res.InFlight)
	assert.Empty(t, res.Orders)
	require.Len(t, res.Incomplete, res.InFlight)
	for i, o := range res.Incomplete {
		assert.Equal(t, i+1, o.ID)
		assert.Equal(t, models.OrderStatusIncomplete, o.Status)
	}

	cfg = testConfig()
	cfg.ChefCount = 1
	cfg.Horizon = 10
	cfg.CompleteInFlight = true
	res, _ = runSim(t, cfg, WithSampler(&testSampler{gaps: gaps(), prep: 5}))

	assert.Equal(t, 10, res.Issued)
	assert.Equal(t, 0, res.InFlight)
	assert.Len(t, res.Orders, 10)
	assert.Empty(t, res.Incomplete)
	assert.Greater(t, res.EndTime, cfg.Horizon)
	// one chef, 5 minutes each: the tenth order starts at 46
	assert.InDelta(t, 46.0-10.0, res.Orders[9].ChefWait(), 1e-9)
}

func TestInvalidSamplesAbortOrders(t *testing.T) {
	cfg := testConfig()
	cfg.Horizon = 10
	res, out := runSim(t, cfg, WithSampler(&testSampler{gaps: []float64{1, 1, 1}, prep: math.NaN()}))

	assert.Equal(t, 3, res.Issued)
	assert.Equal(t, 3, res.Aborted)
	assert.Empty(t, res.Orders)
	assert.Equal(t, 3, out.count(TopicOrderAborted))
	assert.Equal(t, 0, res.Stats.Count(stats.OrderValues))
}

func TestThresholdDispatchesPartiallyChargedDrone(t *testing.T) {
	tests := []struct {
		name        string
		threshold   float64
		wantWait    float64
		wantBattery float64
	}{
		// second order asks at 7, the drone is back at 12 with 90%
		{name: "full charge first", threshold: 100, wantWait: 7.5, wantBattery: 100},
		{name: "threshold 50", threshold: 50, wantWait: 5, wantBattery: 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ChefCount = 2
			cfg.DroneCount = 1
			cfg.Horizon = 100
			cfg.DispatchThreshold = tt.threshold

			res, _ := runSim(t, cfg, WithSampler(&testSampler{gaps: []float64{1, 1}, prep: 5}))
			require.Len(t, res.Orders, 2)
			second := res.Orders[1]
			assert.InDelta(t, tt.wantWait, second.DroneWait(), 1e-9)
			assert.InDelta(t, tt.wantBattery, second.BatteryAtDispatch, 1e-9)
		})
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	sim, err := NewSimulator(testConfig(), WithOutput(NoopOutput{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = sim.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestNewSimulatorRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ChefCount = 0
	cfg.DroneSpeed = -1

	_, err := NewSimulator(cfg)
	require.Error(t, err)
	assert.True(t, models.IsConfigError(err))
}

func TestProgressReportsOncePerMinute(t *testing.T) {
	cfg := testConfig()
	cfg.Horizon = 60

	var reports []float64
	runSim(t, cfg, WithProgress(func(now, horizon float64) {
		assert.Equal(t, 60.0, horizon)
		reports = append(reports, now)
	}))

	require.NotEmpty(t, reports)
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i]-reports[i-1], 1.0)
	}
}

func TestResultSummaries(t *testing.T) {
	cfg := testConfig()
	cfg.ChefCount = 1
	cfg.DroneCount = 1
	res, _ := runSim(t, cfg, WithSampler(&testSampler{gaps: []float64{1, 1}, prep: 5, value: 100}))

	m := res.Metrics()
	assert.Equal(t, 2, m.TotalOrders)
	assert.Equal(t, 2, m.CompletedOrders)
	assert.Equal(t, 200.0, m.TotalRevenue)
	assert.Equal(t, 100.0, m.AvgOrderValue)

	rec := res.RunRecord()
	assert.Equal(t, res.RunID, rec.RunID)
	assert.Equal(t, 2, rec.Orders)
	assert.InDelta(t, m.AvgDeliveryTime, rec.MeanDeliveryTime, 1e-9)
	assert.Contains(t, res.Fields(), "mean_delivery_time")
}
