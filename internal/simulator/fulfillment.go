package simulator

import (
	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/dronesim/internal/engine"
	"github.com/chrisdamba/dronesim/internal/models"
	"github.com/chrisdamba/dronesim/internal/resource"
	"github.com/chrisdamba/dronesim/internal/stats"
)

// delivery carries one order from arrival until its drone is back. Each
// method is one continuation; it does its work and schedules the next.
type delivery struct {
	sim   *Simulator
	order *models.Order
	chef  *resource.Ticket
	grant resource.Grant
}

func (s *Simulator) startDelivery(order *models.Order) {
	d := &delivery{sim: s, order: order}
	s.inFlight[order.ID] = order
	s.sink.Record(stats.OrderValues, order.Value)

	s.publish(TopicOrderPlaced, &OrderPlacedEvent{
		RunID:     s.RunID,
		EventType: "order_placed",
		SimTime:   order.ArrivalTime,
		OrderID:   int64(order.ID),
		Customer:  order.Customer,
		Value:     order.Value,
		X:         order.Location.X,
		Y:         order.Location.Y,
		Distance:  order.Distance,
		PrepTime:  order.PrepTime,
	})
	d.log().Debug("order placed")

	s.chefs.Request(order.ID, d.onChef)
}

func (d *delivery) now() float64 {
	return float64(d.sim.engine.Now())
}

func (d *delivery) log() *logrus.Entry {
	fields := logrus.Fields{
		"run_id":   d.sim.RunID,
		"order_id": d.order.ID,
		"sim_time": d.now(),
	}
	if d.grant.Drone != nil {
		fields["drone_id"] = d.grant.Drone.ID
	}
	return logrus.WithFields(fields)
}

// after resumes fn once delay has elapsed. A delay the engine refuses aborts
// the order and hands back whatever it holds.
func (d *delivery) after(delay float64, fn func()) {
	if _, err := d.sim.engine.Schedule(engine.VTime(delay), fn); err != nil {
		d.fail(err)
	}
}

func (d *delivery) fail(err error) {
	if d.chef != nil {
		must(d.sim.chefs.Release(d.chef))
		d.chef = nil
	}
	if d.grant.Ticket != nil {
		must(d.sim.fleet.Release(d.grant.Ticket, d.grant.Drone))
		d.grant = resource.Grant{}
	}
	d.sim.abort(d.order, err)
}

// must panics on resource errors; they only happen when a ticket is
// released twice, which the chain below never does.
func must(err error) {
	if err != nil {
		logrus.Panicf("resource invariant violated: %v", err)
	}
}

func (d *delivery) onChef(t *resource.Ticket) {
	o := d.order
	d.chef = t
	o.PrepStartTime = d.now()
	o.Status = models.OrderStatusPreparing
	d.sim.sink.Record(stats.ChefWaitTimes, o.ChefWait())

	d.log().WithField("chef_wait", o.ChefWait()).Debug("preparation started")
	d.after(o.PrepTime, d.onPrepared)
}

func (d *delivery) onPrepared() {
	o := d.order
	s := d.sim
	o.PrepDoneTime = d.now()
	must(s.chefs.Release(d.chef))
	d.chef = nil
	s.sink.Record(stats.PrepTimes, o.PrepDoneTime-o.PrepStartTime)

	s.publish(TopicOrderPreparation, &OrderPreparationEvent{
		RunID:         s.RunID,
		EventType:     "order_prepared",
		SimTime:       o.PrepDoneTime,
		OrderID:       int64(o.ID),
		Status:        o.Status,
		PrepStartTime: o.PrepStartTime,
		PrepDoneTime:  o.PrepDoneTime,
		ChefWait:      o.ChefWait(),
	})

	o.DroneRequestTime = d.now()
	o.Status = models.OrderStatusWaiting
	s.fleet.Request(o.ID, d.onDrone)
}

func (d *delivery) onDrone(g resource.Grant) {
	o := d.order
	s := d.sim
	d.grant = g
	o.DroneReadyTime = d.now()
	o.DroneID = g.Drone.ID
	o.BatteryAtDispatch = g.Drone.Level()
	o.Status = models.OrderStatusInFlight
	s.sink.Record(stats.DroneWaitTimes, o.DroneWait())
	s.sink.Record(stats.BatteryAtDispatch, o.BatteryAtDispatch)

	s.publish(TopicDroneDispatch, &DroneDispatchEvent{
		RunID:     s.RunID,
		EventType: "drone_dispatched",
		SimTime:   o.DroneReadyTime,
		OrderID:   int64(o.ID),
		DroneID:   int64(g.Drone.ID),
		Status:    o.Status,
		DroneWait: o.DroneWait(),
		Battery:   o.BatteryAtDispatch,
	})
	d.log().WithField("battery", o.BatteryAtDispatch).Debug("drone dispatched")

	d.after(s.Config.LoadTime, func() { d.fly(d.onDelivered) })
}

// fly is one leg between the kitchen and the customer: takeoff, cruise and
// landing, each draining the battery as it begins.
func (d *delivery) fly(then func()) {
	cfg := d.sim.Config
	fleet := d.sim.fleet
	ticket := d.grant.Ticket
	distance := d.order.Distance

	must(fleet.DrainByTakeoff(ticket))
	d.after(cfg.TakeoffTime, func() {
		must(fleet.DrainByTravel(ticket, distance))
		d.after(distance/cfg.DroneSpeed, func() {
			must(fleet.DrainByLanding(ticket))
			d.after(cfg.LandTime, then)
		})
	})
}

func (d *delivery) onDelivered() {
	o := d.order
	s := d.sim
	o.DeliveredTime = d.now()
	o.Status = models.OrderStatusDelivered
	s.sink.Record(stats.DeliveryTimes, o.DeliveryTime())

	s.publish(TopicOrderDelivery, &OrderDeliveryEvent{
		RunID:        s.RunID,
		EventType:    "order_delivered",
		SimTime:      o.DeliveredTime,
		OrderID:      int64(o.ID),
		DroneID:      int64(o.DroneID),
		Status:       o.Status,
		DeliveryTime: o.DeliveryTime(),
		Distance:     o.Distance,
	})
	d.log().WithField("delivery_time", o.DeliveryTime()).Debug("order delivered")

	d.after(s.Config.PickupTime, func() {
		o.Status = models.OrderStatusReturning
		d.fly(d.onReturned)
	})
}

func (d *delivery) onReturned() {
	o := d.order
	s := d.sim
	drone := d.grant.Drone
	o.DroneReleaseTime = d.now()
	o.BatteryAtReturn = drone.Level()
	must(s.fleet.Release(d.grant.Ticket, drone))
	o.Status = models.OrderStatusCompleted

	s.sink.Record(stats.BatteryReadings, o.BatteryAtReturn)
	s.sink.Record(stats.RoundTripTimes, o.RoundTrip())

	s.publish(TopicDroneRelease, &DroneReleaseEvent{
		RunID:     s.RunID,
		EventType: "drone_released",
		SimTime:   o.DroneReleaseTime,
		OrderID:   int64(o.ID),
		DroneID:   int64(drone.ID),
		Battery:   o.BatteryAtReturn,
		RoundTrip: o.RoundTrip(),
	})
	d.log().WithField("battery", o.BatteryAtReturn).Debug("drone released")

	d.grant = resource.Grant{}
	delete(s.inFlight, o.ID)
	s.completed = append(s.completed, o)
}
