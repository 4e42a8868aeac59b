package models

import "time"

// RunRecord is the summary row of one simulation run.
type RunRecord struct {
	RunID            string    `json:"run_id"`
	Seed             int64     `json:"seed"`
	ChefCount        int       `json:"chef_count"`
	DroneCount       int       `json:"drone_count"`
	ArrivalRate      float64   `json:"arrival_rate"`
	Horizon          float64   `json:"horizon"`
	Orders           int       `json:"orders"`
	Aborted          int       `json:"aborted"`
	InFlight         int       `json:"in_flight"`
	MeanChefWait     float64   `json:"mean_chef_wait"`
	MeanDroneWait    float64   `json:"mean_drone_wait"`
	MeanDeliveryTime float64   `json:"mean_delivery_time"`
	ChefUtilization  float64   `json:"chef_utilization"`
	FleetUtilization float64   `json:"fleet_utilization"`
	EndTime          float64   `json:"end_time"`
	CreatedAt        time.Time `json:"created_at"`
}
