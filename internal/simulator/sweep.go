package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/chrisdamba/dronesim/internal/models"
	"github.com/chrisdamba/dronesim/internal/stats"
)

// SweepSpec is the grid of pool sizes to compare. Replication i of every
// pair runs with seed base+i, so all pairs see the same demand.
type SweepSpec struct {
	Chefs        []int
	Drones       []int
	Replications int
	Parallelism  int
}

// SweepPoint averages the replications of one (chefs, drones) pair. A mean
// wait is NaN when none of the replications produced a sample for it.
type SweepPoint struct {
	Chefs            int     `json:"chefs"`
	Drones           int     `json:"drones"`
	Replications     int     `json:"replications"`
	Orders           float64 `json:"orders"`
	MeanChefWait     float64 `json:"mean_chef_wait"`
	MeanDroneWait    float64 `json:"mean_drone_wait"`
	MeanDeliveryTime float64 `json:"mean_delivery_time"`
	FleetUtilization float64 `json:"fleet_utilization"`
}

// MarshalJSON writes a mean that no replication produced as null.
func (p SweepPoint) MarshalJSON() ([]byte, error) {
	type point SweepPoint
	return json.Marshal(struct {
		point
		MeanChefWait     *float64 `json:"mean_chef_wait"`
		MeanDroneWait    *float64 `json:"mean_drone_wait"`
		MeanDeliveryTime *float64 `json:"mean_delivery_time"`
	}{
		point:            point(p),
		MeanChefWait:     nullable(p.MeanChefWait),
		MeanDroneWait:    nullable(p.MeanDroneWait),
		MeanDeliveryTime: nullable(p.MeanDeliveryTime),
	})
}

func nullable(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// mean averages only the replications that produced a value.
type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.n++
}

func (m mean) value() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

// pointMeans accumulates the replications of one sweep point. A run that
// never granted a drone or delivered an order has no sample for that wait
// and is left out of its mean rather than turning it into NaN.
type pointMeans struct {
	orders, chefWait, droneWait, delivery, utilization mean
}

func (pm *pointMeans) add(res *Result) {
	pm.orders.add(float64(len(res.Orders)))
	pm.chefWait.add(res.Stats.Mean(stats.ChefWaitTimes))
	pm.droneWait.add(res.Stats.Mean(stats.DroneWaitTimes))
	pm.delivery.add(res.Stats.Mean(stats.DeliveryTimes))
	pm.utilization.add(res.FleetUtilization)
}

func (pm *pointMeans) fill(p *SweepPoint) {
	p.Orders = pm.orders.value()
	p.MeanChefWait = pm.chefWait.value()
	p.MeanDroneWait = pm.droneWait.value()
	p.MeanDeliveryTime = pm.delivery.value()
	p.FleetUtilization = pm.utilization.value()
}

func (spec SweepSpec) validate() error {
	var result *multierror.Error
	if len(spec.Chefs) == 0 {
		result = multierror.Append(result, &models.ConfigError{Field: "chefs", Reason: "no chef counts to sweep"})
	}
	if len(spec.Drones) == 0 {
		result = multierror.Append(result, &models.ConfigError{Field: "drones", Reason: "no drone counts to sweep"})
	}
	if spec.Replications <= 0 {
		result = multierror.Append(result, &models.ConfigError{
			Field:  "replications",
			Reason: fmt.Sprintf("must be positive, got %d", spec.Replications),
		})
	}
	return result.ErrorOrNil()
}

// Sweep runs every pair of the grid Replications times. Runs are independent
// and execute in parallel; each one is single-threaded. Points come back
// sorted by chefs, then drones.
func Sweep(ctx context.Context, base *models.Config, spec SweepSpec) ([]SweepPoint, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	parallelism := spec.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	type job struct {
		point, replication int
		config             models.Config
	}
	var jobs []job
	points := make([]SweepPoint, 0, len(spec.Chefs)*len(spec.Drones))
	for _, chefs := range spec.Chefs {
		for _, drones := range spec.Drones {
			for rep := 0; rep < spec.Replications; rep++ {
				cfg := *base
				cfg.ChefCount = chefs
				cfg.DroneCount = drones
				cfg.Seed = base.Seed + int64(rep)
				cfg.OutputFormat = models.OutputNone
				if err := cfg.Validate(); err != nil {
					return nil, err
				}
				jobs = append(jobs, job{point: len(points), replication: rep, config: cfg})
			}
			points = append(points, SweepPoint{Chefs: chefs, Drones: drones, Replications: spec.Replications})
		}
	}

	results := make([]*Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := range jobs {
		i := i
		g.Go(func() error {
			sim, err := NewSimulator(&jobs[i].config,
				WithOutput(NoopOutput{}),
				WithRunLogLevel(logrus.DebugLevel),
			)
			if err != nil {
				return err
			}
			res, err := sim.Run(ctx)
			if err != nil {
				return fmt.Errorf("chefs=%d drones=%d replication %d: %w",
					jobs[i].config.ChefCount, jobs[i].config.DroneCount, jobs[i].replication, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	acc := make([]pointMeans, len(points))
	for i, res := range results {
		acc[jobs[i].point].add(res)
	}
	for i := range points {
		acc[i].fill(&points[i])
	}
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Chefs != points[j].Chefs {
			return points[i].Chefs < points[j].Chefs
		}
		return points[i].Drones < points[j].Drones
	})

	logrus.WithFields(logrus.Fields{
		"points": len(points),
		"runs":   len(jobs),
	}).Info("sweep completed")
	return points, nil
}

// Best returns the point with the lowest mean delivery time. Points whose
// runs completed no order never win.
func Best(points []SweepPoint) (SweepPoint, bool) {
	best, found := SweepPoint{}, false
	for _, p := range points {
		if math.IsNaN(p.MeanDeliveryTime) {
			continue
		}
		if !found || p.MeanDeliveryTime < best.MeanDeliveryTime {
			best, found = p, true
		}
	}
	return best, found
}
