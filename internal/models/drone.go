package models

import (
	"math"

	"github.com/sirupsen/logrus"
)

type DroneState string

const (
	DroneIdleCharged  DroneState = "idle_charged"
	DroneIdleDepleted DroneState = "idle_depleted"
	DroneCharging     DroneState = "charging"
	DroneBusy         DroneState = "busy"
)

// chargeTolerance absorbs float rounding when a charge completes exactly at
// its computed time.
const chargeTolerance = 1e-6

// BatteryProfile is the per-drone battery cost of each flight phase and the
// recharge speed, all in percent.
type BatteryProfile struct {
	TakeoffDrain float64 `json:"takeoff_drain"`
	LandDrain    float64 `json:"land_drain"`
	PerKmDrain   float64 `json:"per_km_drain"`
	ChargeRate   float64 `json:"charge_rate"` // per minute
}

// ProfileFromConfig extracts the battery profile from a run config.
func ProfileFromConfig(cfg *Config) BatteryProfile {
	return BatteryProfile{
		TakeoffDrain: cfg.TakeoffDrain,
		LandDrain:    cfg.LandDrain,
		PerKmDrain:   cfg.PerKmDrain,
		ChargeRate:   cfg.ChargeRate,
	}
}

// Drone is one delivery vehicle. While charging, its battery is not stored
// but derived from the level at charge start, the start time and the rate, so
// a charge can be interrupted at any instant and still report the exact level.
//
// The level is allowed to drop below zero: a long trip leaves the drone in
// battery debt, which simply makes the next charge longer.
type Drone struct {
	ID      int            `json:"id"`
	State   DroneState     `json:"state"`
	Profile BatteryProfile `json:"profile"`
	Trips   int            `json:"trips"`

	level       float64
	chargeStart float64
}

func NewDrone(id int, profile BatteryProfile) *Drone {
	return &Drone{
		ID:      id,
		State:   DroneIdleCharged,
		Profile: profile,
		level:   FullBattery,
	}
}

// BatteryAt returns the battery level at simulated time now.
func (d *Drone) BatteryAt(now float64) float64 {
	if d.State != DroneCharging {
		return d.level
	}
	level := d.level + d.Profile.ChargeRate*(now-d.chargeStart)
	return math.Min(level, FullBattery)
}

// Level returns the stored level; for a charging drone that is the level the
// charge started from.
func (d *Drone) Level() float64 {
	return d.level
}

func (d *Drone) IsBusy() bool {
	return d.State == DroneBusy
}

// Dispatch hands the drone to an order. A charge in progress stops and the
// battery keeps whatever level it reached.
func (d *Drone) Dispatch(now float64) float64 {
	if d.IsBusy() {
		logrus.Panicf("drone %d dispatched while busy", d.ID)
	}
	d.level = d.BatteryAt(now)
	d.State = DroneBusy
	d.Trips++
	return d.level
}

func (d *Drone) DrainByTakeoff() {
	d.drain(d.Profile.TakeoffDrain)
}

func (d *Drone) DrainByLanding() {
	d.drain(d.Profile.LandDrain)
}

func (d *Drone) DrainByTravel(distance float64) {
	d.drain(distance * d.Profile.PerKmDrain)
}

func (d *Drone) drain(amount float64) {
	if !d.IsBusy() {
		logrus.Panicf("drone %d drained while %s", d.ID, d.State)
	}
	d.level -= amount
}

// Release returns the drone from an order.
func (d *Drone) Release() {
	if !d.IsBusy() {
		logrus.Panicf("drone %d released while %s", d.ID, d.State)
	}
	if d.level >= FullBattery {
		d.State = DroneIdleCharged
		return
	}
	d.State = DroneIdleDepleted
}

// StartCharging begins a recharge at now and returns the time to full.
func (d *Drone) StartCharging(now float64) float64 {
	if d.State != DroneIdleDepleted {
		logrus.Panicf("drone %d cannot start charging while %s", d.ID, d.State)
	}
	d.State = DroneCharging
	d.chargeStart = now
	return (FullBattery - d.level) / d.Profile.ChargeRate
}

// FinishCharging completes a charge. The charge must have run its full
// course: finishing early or overshooting is a scheduling defect.
func (d *Drone) FinishCharging(now float64) {
	if d.State != DroneCharging {
		logrus.Panicf("drone %d finished charging while %s", d.ID, d.State)
	}
	reached := d.level + d.Profile.ChargeRate*(now-d.chargeStart)
	if math.Abs(reached-FullBattery) > chargeTolerance {
		logrus.Panicf("drone %d charge completed at %.9f%%", d.ID, reached)
	}
	d.level = FullBattery
	d.State = DroneIdleCharged
}
