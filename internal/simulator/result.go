package simulator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/dronesim/internal/models"
	"github.com/chrisdamba/dronesim/internal/stats"
)

// Result is everything a finished run produced. Stats is frozen.
type Result struct {
	RunID  string
	Config models.Config
	Stats  *stats.Sink

	// Orders holds the completed orders in arrival order, Incomplete the
	// ones still in progress when the run stopped.
	Orders        []*models.Order
	Incomplete    []*models.Order
	Issued        int
	InFlight      int
	Aborted       int
	PublishErrors int

	ChefBusyTime     float64
	ChefQueueTime    float64
	FleetBusyTime    float64
	FleetQueueTime   float64
	ChefUtilization  float64
	FleetUtilization float64
	EndTime          float64
}

func (r *Result) Metrics() models.OrderMetrics {
	m := models.OrderMetrics{
		TotalOrders:     r.Issued,
		CompletedOrders: len(r.Orders),
		AbortedOrders:   r.Aborted,
	}
	for _, o := range r.Orders {
		m.TotalRevenue += o.Value
	}
	if len(r.Orders) > 0 {
		m.AvgOrderValue = m.TotalRevenue / float64(len(r.Orders))
	}
	m.AvgDeliveryTime = r.Stats.Mean(stats.DeliveryTimes)
	return m
}

func (r *Result) RunRecord() models.RunRecord {
	return models.RunRecord{
		RunID:            r.RunID,
		Seed:             r.Config.Seed,
		ChefCount:        r.Config.ChefCount,
		DroneCount:       r.Config.DroneCount,
		ArrivalRate:      r.Config.ArrivalRate,
		Horizon:          r.Config.Horizon,
		Orders:           len(r.Orders),
		Aborted:          r.Aborted,
		InFlight:         r.InFlight,
		MeanChefWait:     r.Stats.Mean(stats.ChefWaitTimes),
		MeanDroneWait:    r.Stats.Mean(stats.DroneWaitTimes),
		MeanDeliveryTime: r.Stats.Mean(stats.DeliveryTimes),
		ChefUtilization:  r.ChefUtilization,
		FleetUtilization: r.FleetUtilization,
		EndTime:          r.EndTime,
		CreatedAt:        time.Now().UTC(),
	}
}

// Fields is the run summary as log fields.
func (r *Result) Fields() logrus.Fields {
	return logrus.Fields{
		"orders":             len(r.Orders),
		"in_flight":          r.InFlight,
		"aborted":            r.Aborted,
		"mean_chef_wait":     r.Stats.Mean(stats.ChefWaitTimes),
		"mean_drone_wait":    r.Stats.Mean(stats.DroneWaitTimes),
		"mean_delivery_time": r.Stats.Mean(stats.DeliveryTimes),
		"chef_utilization":   r.ChefUtilization,
		"fleet_utilization":  r.FleetUtilization,
		"end_time":           r.EndTime,
	}
}
