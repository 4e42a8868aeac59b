package resource

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/dronesim/internal/engine"
	"github.com/chrisdamba/dronesim/internal/models"
)

// Grant is what a fleet request resumes with.
type Grant struct {
	Ticket *Ticket
	Drone  *models.Drone
}

type fleetRequest struct {
	ticket *Ticket
	fn     func(Grant)
}

// Fleet is the shared pool of drones. Each drone is allocated to at most one
// order at a time; a released drone starts recharging at once and the
// selector decides whether a waiting order takes a full drone, a drone that is
// charging, or keeps waiting.
type Fleet struct {
	engine   *engine.Engine
	drones   []*models.Drone
	selector Selector

	waiting  []*fleetRequest
	claims   map[int]*fleetRequest
	charging map[int]*engine.Event
	charged  map[int]*engine.Signal
	held     map[uint64]*Ticket

	active int
	nextID uint64
	acct   Accounting

	// OnCharged is called every time a drone completes a charge.
	OnCharged func(d *models.Drone, now engine.VTime)
}

func NewFleet(eng *engine.Engine, drones []*models.Drone, selector Selector) (*Fleet, error) {
	if len(drones) == 0 {
		return nil, &models.ConfigError{Field: "drone_count", Reason: "fleet needs at least one drone"}
	}
	if selector == nil {
		selector = FullChargeFirst()
	}
	f := &Fleet{
		engine:   eng,
		drones:   drones,
		selector: selector,
		claims:   make(map[int]*fleetRequest),
		charging: make(map[int]*engine.Event),
		charged:  make(map[int]*engine.Signal),
		held:     make(map[uint64]*Ticket),
	}
	for _, d := range drones {
		if _, dup := f.charged[d.ID]; dup {
			return nil, &models.ConfigError{Field: "drones", Reason: fmt.Sprintf("duplicate drone id %d", d.ID)}
		}
		f.charged[d.ID] = eng.NewSignal(fmt.Sprintf("drone-%d-charged", d.ID))
	}
	return f, nil
}

func (f *Fleet) Capacity() int { return len(f.drones) }
func (f *Fleet) Active() int { return f.active }
func (f *Fleet) Queued() int { return len(f.waiting) + len(f.claims) }
func (f *Fleet) Drones() []*models.Drone { return f.drones }
func (f *Fleet) BusyTime() float64 { return f.acct.BusyTime }
func (f *Fleet) QueueTime() float64 { return f.acct.QueueTime }
func (f *Fleet) ClaimedBy(droneID int) bool { return f.claims[droneID] != nil }

// BusyCount counts drones currently out on an order.
func (f *Fleet) BusyCount() int {
	n := 0
	for _, d := range f.drones {
		if d.IsBusy() {
			n++
		}
	}
	return n
}

// Sync brings the accounting up to the current time without a transition.
func (f *Fleet) Sync() Accounting {
	f.acct.Update(f.engine.Now(), f.active, f.Queued())
	return f.acct
}

// Request asks for a drone on behalf of owner; fn resumes with the grant.
func (f *Fleet) Request(owner int, fn func(Grant)) {
	f.nextID++
	req := &fleetRequest{
		ticket: &Ticket{ID: f.nextID, Owner: owner, RequestedAt: f.engine.Now()},
		fn:     fn,
	}
	f.acct.Update(f.engine.Now(), f.active, f.Queued())
	f.waiting = append(f.waiting, req)
	f.dispatch()
}

func (f *Fleet) heldDrone(t *Ticket) (*models.Drone, error) {
	if t == nil || f.held[t.ID] != t {
		return nil, fmt.Errorf("fleet: %w", ErrUnknownTicket)
	}
	return t.Drone, nil
}

func (f *Fleet) DrainByTakeoff(t *Ticket) error {
	d, err := f.heldDrone(t)
	if err != nil {
		return err
	}
	d.DrainByTakeoff()
	return nil
}

func (f *Fleet) DrainByLanding(t *Ticket) error {
	d, err := f.heldDrone(t)
	if err != nil {
		return err
	}
	d.DrainByLanding()
	return nil
}

func (f *Fleet) DrainByTravel(t *Ticket, distance float64) error {
	d, err := f.heldDrone(t)
	if err != nil {
		return err
	}
	d.DrainByTravel(distance)
	return nil
}

// Release returns the drone to the fleet and starts its recharge.
func (f *Fleet) Release(t *Ticket, d *models.Drone) error {
	held, err := f.heldDrone(t)
	if err != nil {
		return err
	}
	if held != d {
		return fmt.Errorf("fleet: drone %d does not belong to ticket %d: %w", d.ID, t.ID, ErrUnknownTicket)
	}
	delete(f.held, t.ID)

	now := f.engine.Now()
	f.acct.Update(now, f.active, f.Queued())
	d.Release()
	f.active--

	if d.State == models.DroneIdleDepleted {
		if err := f.startCharging(d); err != nil {
			return err
		}
	}

	f.dispatch()
	return nil
}

func (f *Fleet) startCharging(d *models.Drone) error {
	timeToFull := d.StartCharging(float64(f.engine.Now()))
	evt, err := f.engine.Schedule(engine.VTime(timeToFull), func() { f.finishCharging(d) })
	if err != nil {
		return fmt.Errorf("drone %d: scheduling charge: %w", d.ID, err)
	}
	f.charging[d.ID] = evt
	return nil
}

func (f *Fleet) finishCharging(d *models.Drone) {
	now := f.engine.Now()
	delete(f.charging, d.ID)
	d.FinishCharging(float64(now))

	logrus.WithFields(logrus.Fields{
		"drone_id": d.ID,
		"sim_time": now,
	}).Debug("drone charged")

	if f.OnCharged != nil {
		f.OnCharged(d, now)
	}
	f.charged[d.ID].Fire()
	f.dispatch()
}

// candidates lists the drones nobody holds or has claimed, in id order.
func (f *Fleet) candidates() []Candidate {
	now := float64(f.engine.Now())
	out := make([]Candidate, 0, len(f.drones))
	for _, d := range f.drones {
		if d.IsBusy() || f.claims[d.ID] != nil {
			continue
		}
		out = append(out, Candidate{Drone: d, Battery: d.BatteryAt(now)})
	}
	return out
}

// dispatch serves waiting requests, oldest first, until no candidate is left.
func (f *Fleet) dispatch() {
	for len(f.waiting) > 0 {
		candidates := f.candidates()
		if len(candidates) == 0 {
			return
		}
		pick, ready := f.selector.Select(candidates)

		f.acct.Update(f.engine.Now(), f.active, f.Queued())
		req := f.waiting[0]
		f.waiting[0] = nil
		f.waiting = f.waiting[1:]

		if ready {
			f.grant(req, pick.Drone)
			continue
		}
		f.claim(req, pick)
	}
}

// claim reserves a charging drone for req and hands it over once the battery
// reaches the selector's ready level.
func (f *Fleet) claim(req *fleetRequest, pick Candidate) {
	d := pick.Drone
	f.claims[d.ID] = req

	handover := func() {
		f.acct.Update(f.engine.Now(), f.active, f.Queued())
		delete(f.claims, d.ID)
		f.grant(req, d)
	}

	ready := f.selector.ReadyLevel()
	if ready >= models.FullBattery {
		f.charged[d.ID].Wait(handover)
		return
	}

	delay := (ready - pick.Battery) / d.Profile.ChargeRate
	if _, err := f.engine.Schedule(engine.VTime(delay), handover); err != nil {
		logrus.Panicf("drone %d: scheduling handover: %v", d.ID, err)
	}
}

func (f *Fleet) grant(req *fleetRequest, d *models.Drone) {
	now := f.engine.Now()
	f.acct.Update(now, f.active, f.Queued())

	if evt, ok := f.charging[d.ID]; ok {
		f.engine.Cancel(evt)
		delete(f.charging, d.ID)
	}
	d.Dispatch(float64(now))

	f.active++
	if f.active > len(f.drones) {
		logrus.Panicf("fleet: %d drones active, capacity %d", f.active, len(f.drones))
	}

	req.ticket.GrantedAt = now
	req.ticket.Drone = d
	f.held[req.ticket.ID] = req.ticket
	f.engine.ScheduleAt(now, func() { req.fn(Grant{Ticket: req.ticket, Drone: d}) })
}
