// Package simulator runs the drone delivery model: orders arrive at the
// kitchen, queue for a chef, queue for a drone and are flown out and back,
// all on one simulated clock.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/lucsky/cuid"
	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/dronesim/internal/engine"
	"github.com/chrisdamba/dronesim/internal/factories"
	"github.com/chrisdamba/dronesim/internal/models"
	"github.com/chrisdamba/dronesim/internal/resource"
	"github.com/chrisdamba/dronesim/internal/stats"
)

// ErrAlreadyRun is returned when Run is called twice on one simulator.
var ErrAlreadyRun = errors.New("simulator already ran")

type Simulator struct {
	Config *models.Config
	RunID  string

	engine  *engine.Engine
	chefs   *resource.Pool
	fleet   *resource.Fleet
	sampler Sampler
	orders  *factories.OrderFactory
	sink    *stats.Sink
	output  OutputDestination

	completed     []*models.Order
	inFlight      map[int]*models.Order
	aborted       int
	publishErrors int
	ran           bool

	progress     func(now, horizon float64)
	lastProgress engine.VTime
	logLevel     logrus.Level
}

type Option func(*Simulator)

// WithSampler replaces the seeded random sampler.
func WithSampler(sampler Sampler) Option {
	return func(s *Simulator) { s.sampler = sampler }
}

// WithOutput publishes to out instead of the destination named by the
// config. The caller keeps ownership and closes it.
func WithOutput(out OutputDestination) Option {
	return func(s *Simulator) { s.output = out }
}

func WithRunID(runID string) Option {
	return func(s *Simulator) { s.RunID = runID }
}

// WithProgress reports the clock at most once per simulated minute.
func WithProgress(fn func(now, horizon float64)) Option {
	return func(s *Simulator) { s.progress = fn }
}

// WithRunLogLevel sets the level of the run start and summary lines.
func WithRunLogLevel(level logrus.Level) Option {
	return func(s *Simulator) { s.logLevel = level }
}

// WithHook registers a hook invoked around every engine event.
func WithHook(hook engine.Hook) Option {
	return func(s *Simulator) { s.engine.AcceptHook(hook) }
}

func NewSimulator(config *models.Config, opts ...Option) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	eng := engine.New()
	chefs, err := resource.NewPool(eng, "chefs", config.ChefCount)
	if err != nil {
		return nil, err
	}
	droneFactory := &factories.DroneFactory{}
	fleet, err := resource.NewFleet(eng, droneFactory.CreateFleet(config), resource.Threshold(config.DispatchThreshold))
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		Config:   config,
		engine:   eng,
		chefs:    chefs,
		fleet:    fleet,
		sink:     stats.NewSink(),
		inFlight: make(map[int]*models.Order),
		logLevel: logrus.InfoLevel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.RunID == "" {
		s.RunID = cuid.New()
	}
	if s.sampler == nil {
		s.sampler = NewRandomSampler(config)
	}
	s.orders = factories.NewOrderFactory(s.sampler, config.Seed)
	s.fleet.OnCharged = s.onDroneCharged
	return s, nil
}

// Run simulates up to the horizon, or until every started order is done when
// complete_in_flight is set, and returns the frozen results. Cancelling ctx
// stops the run between two events.
func (s *Simulator) Run(ctx context.Context) (result *Result, err error) {
	if s.ran {
		return nil, ErrAlreadyRun
	}
	s.ran = true

	if s.output == nil {
		out, err := NewOutputDestination(ctx, s.Config, s.RunID)
		if err != nil {
			return nil, fmt.Errorf("opening output: %w", err)
		}
		s.output = out
		defer func() {
			if cerr := out.Close(); cerr != nil {
				err = multierror.Append(err, fmt.Errorf("closing output: %w", cerr)).ErrorOrNil()
			}
		}()
	}

	log := logrus.WithField("run_id", s.RunID)
	log.WithFields(logrus.Fields{
		"chefs":   s.Config.ChefCount,
		"drones":  s.Config.DroneCount,
		"horizon": s.Config.Horizon,
		"seed":    s.Config.Seed,
	}).Log(s.logLevel, "simulation starts")

	s.scheduleNextArrival()

	horizon := engine.VTime(s.Config.Horizon)
	if err := s.runUntil(ctx, horizon); err != nil {
		return nil, err
	}
	if s.Config.CompleteInFlight {
		if err := s.runUntil(ctx, engine.VTime(math.Inf(1))); err != nil {
			return nil, err
		}
	}

	result = s.result()
	log.WithFields(result.Fields()).Log(s.logLevel, "simulation completed")
	return result, nil
}

// runUntil processes events up to and including t and then moves the clock
// to t. An infinite t drains the queue and leaves the clock at the last
// event.
func (s *Simulator) runUntil(ctx context.Context, t engine.VTime) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, ok := s.engine.Peek()
		if !ok || next > t {
			break
		}
		s.engine.Step()
		s.reportProgress()
	}
	if !math.IsInf(float64(t), 1) {
		s.engine.RunUntil(t)
	}
	return nil
}

func (s *Simulator) reportProgress() {
	if s.progress == nil {
		return
	}
	now := s.engine.Now()
	if now-s.lastProgress < 1 {
		return
	}
	s.lastProgress = now
	s.progress(float64(now), s.Config.Horizon)
}

// scheduleNextArrival draws the gap to the next order. Arrivals after the
// horizon are never generated.
func (s *Simulator) scheduleNextArrival() {
	gap := s.sampler.InterArrival()
	at := float64(s.engine.Now()) + gap
	if at > s.Config.Horizon {
		return
	}
	if _, err := s.engine.Schedule(engine.VTime(gap), s.onArrival); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"run_id":   s.RunID,
			"sim_time": s.engine.Now(),
		}).Error("order generator stopped")
	}
}

func (s *Simulator) onArrival() {
	order, err := s.orders.CreateOrder(float64(s.engine.Now()))
	if err != nil {
		s.abort(order, err)
	} else {
		s.startDelivery(order)
	}
	s.scheduleNextArrival()
}

func (s *Simulator) abort(order *models.Order, err error) {
	s.aborted++
	order.Status = models.OrderStatusAborted
	delete(s.inFlight, order.ID)

	logrus.WithError(err).WithFields(logrus.Fields{
		"run_id":   s.RunID,
		"order_id": order.ID,
		"sim_time": s.engine.Now(),
	}).Warn("order aborted")

	s.publish(TopicOrderAborted, &OrderAbortedEvent{
		RunID:     s.RunID,
		EventType: "order_aborted",
		SimTime:   float64(s.engine.Now()),
		OrderID:   int64(order.ID),
		Reason:    err.Error(),
	})
}

func (s *Simulator) onDroneCharged(d *models.Drone, now engine.VTime) {
	s.publish(TopicDroneCharged, &DroneChargedEvent{
		RunID:     s.RunID,
		EventType: "drone_charged",
		SimTime:   float64(now),
		DroneID:   int64(d.ID),
		Trips:     int64(d.Trips),
	})
}

// publish serializes record and hands it to the output. Output failures are
// logged and counted but never stop the run.
func (s *Simulator) publish(topic string, record interface{}) {
	msg, err := json.Marshal(record)
	if err == nil {
		err = s.output.WriteMessage(topic, msg)
	}
	if err != nil {
		s.publishErrors++
		logrus.WithError(err).WithFields(logrus.Fields{
			"run_id": s.RunID,
			"topic":  topic,
		}).Error("failed to write message")
	}
}

func (s *Simulator) result() *Result {
	now := s.engine.Now()
	chefs := s.chefs.Sync()
	fleet := s.fleet.Sync()

	completed := make([]*models.Order, len(s.completed))
	copy(completed, s.completed)
	sort.Slice(completed, func(i, j int) bool { return completed[i].ID < completed[j].ID })

	incomplete := make([]*models.Order, 0, len(s.inFlight))
	for _, o := range s.inFlight {
		o.Status = models.OrderStatusIncomplete
		incomplete = append(incomplete, o)
	}
	sort.Slice(incomplete, func(i, j int) bool { return incomplete[i].ID < incomplete[j].ID })

	s.sink.Freeze()
	return &Result{
		RunID:            s.RunID,
		Config:           *s.Config,
		Stats:            s.sink,
		Orders:           completed,
		Incomplete:       incomplete,
		Issued:           s.orders.Issued(),
		InFlight:         len(s.inFlight),
		Aborted:          s.aborted,
		PublishErrors:    s.publishErrors,
		ChefBusyTime:     chefs.BusyTime,
		ChefQueueTime:    chefs.QueueTime,
		FleetBusyTime:    fleet.BusyTime,
		FleetQueueTime:   fleet.QueueTime,
		ChefUtilization:  chefs.Utilization(now, s.chefs.Capacity()),
		FleetUtilization: fleet.Utilization(now, s.fleet.Capacity()),
		EndTime:          float64(now),
	}
}
