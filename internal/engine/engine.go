// Package engine is the single-threaded clock and scheduler that every
// simulated task runs on. Tasks are written as continuations: a task does some
// work, registers what should happen next with Schedule or a Signal, and
// returns. Only one continuation runs at any time.
package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNegativeDelay is returned when a continuation is scheduled with a
	// delay below zero.
	ErrNegativeDelay = errors.New("negative scheduling delay")

	// ErrInvalidDelay is returned for NaN or infinite delays.
	ErrInvalidDelay = errors.New("invalid scheduling delay")
)

// Engine owns the simulation clock and the pending event queue.
type Engine struct {
	HookableBase

	now       VTime
	queue     *EventQueue
	processed uint64
}

// New creates an engine with the clock at zero.
func New() *Engine {
	return &Engine{queue: NewEventQueue()}
}

// Now returns the current simulated time.
func (e *Engine) Now() VTime {
	return e.now
}

// Processed returns the number of events run so far.
func (e *Engine) Processed() uint64 {
	return e.processed
}

// Pending returns the number of events waiting in the queue.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Schedule registers fn to resume after delay time units. A zero delay runs fn
// at the current instant, after everything already queued for this instant.
func (e *Engine) Schedule(delay VTime, fn func()) (*Event, error) {
	d := float64(delay)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDelay, d)
	}
	if d < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNegativeDelay, d)
	}
	return e.queue.Enqueue(e.now+delay, fn), nil
}

// ScheduleAt registers fn to run at absolute time t. Scheduling into the past
// is a programming error.
func (e *Engine) ScheduleAt(t VTime, fn func()) *Event {
	if t < e.now {
		logrus.Panicf("scheduling an event at %.6f earlier than current time %.6f", t, e.now)
	}
	return e.queue.Enqueue(t, fn)
}

// Cancel drops a pending event. Cancelling an event that already ran or was
// already cancelled does nothing.
func (e *Engine) Cancel(evt *Event) {
	if evt == nil || !evt.Pending() {
		return
	}
	evt.cancelled = true
	e.queue.Remove(evt)
}

// Peek returns the time of the next pending event.
func (e *Engine) Peek() (VTime, bool) {
	next := e.queue.Peek()
	if next == nil {
		return 0, false
	}
	return next.time, true
}

// Advance moves the clock to the earliest pending event and runs every event
// scheduled for that instant, including zero-delay events registered while
// doing so. It returns false when nothing is pending.
func (e *Engine) Advance() bool {
	next := e.queue.Peek()
	if next == nil {
		return false
	}
	at := next.time
	for {
		next = e.queue.Peek()
		if next == nil || next.time != at {
			return true
		}
		e.step()
	}
}

// Step runs exactly one event. It returns false when nothing is pending.
func (e *Engine) Step() bool {
	if e.queue.IsEmpty() {
		return false
	}
	e.step()
	return true
}

func (e *Engine) step() {
	evt := e.queue.Dequeue()
	if evt.time < e.now {
		logrus.Panicf("cannot run event in the past, evt @ %.6f, now %.6f", evt.time, e.now)
	}
	e.now = evt.time

	ctx := HookCtx{Engine: e, Pos: HookPosBeforeEvent, Now: e.now, Item: evt}
	e.InvokeHook(ctx)

	evt.fired = true
	evt.fn()
	e.processed++

	ctx.Pos = HookPosAfterEvent
	e.InvokeHook(ctx)
}

// Run processes events until the queue is empty.
func (e *Engine) Run() {
	for e.Advance() {
	}
}

// RunUntil processes every event scheduled at or before t and then moves the
// clock to t. Later events stay pending.
func (e *Engine) RunUntil(t VTime) {
	for {
		next, ok := e.Peek()
		if !ok || next > t {
			break
		}
		e.step()
	}
	if t > e.now {
		e.now = t
	}
}
