package engine

import (
	"container/heap"
)

// VTime is a point in simulated time, in minutes.
type VTime float64

// Event is a continuation waiting in the queue for its time to come.
type Event struct {
	time      VTime
	seq       uint64
	fn        func()
	index     int
	cancelled bool
	fired     bool
}

// Time returns the instant the event is scheduled for.
func (e *Event) Time() VTime {
	return e.time
}

// Pending reports whether the event is still waiting to run.
func (e *Event) Pending() bool {
	return !e.cancelled && !e.fired
}

// EventQueue is a priority queue of events. The front of the queue is always
// the event to happen next; events at the same instant leave in the order
// they were pushed.
type EventQueue struct {
	events eventHeap
	seq    uint64
}

// eventHeap implements heap.Interface and holds Events
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x interface{}) {
	evt := x.(*Event)
	evt.index = len(*h)
	*h = append(*h, evt)
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[0 : n-1]
	return x
}

// NewEventQueue creates a new EventQueue
func NewEventQueue() *EventQueue {
	return &EventQueue{events: make(eventHeap, 0)}
}

// Enqueue adds a continuation at time t and returns its event.
func (eq *EventQueue) Enqueue(t VTime, fn func()) *Event {
	eq.seq++
	evt := &Event{time: t, seq: eq.seq, fn: fn}
	heap.Push(&eq.events, evt)
	return evt
}

// Dequeue removes and returns the earliest event from the queue
func (eq *EventQueue) Dequeue() *Event {
	if len(eq.events) == 0 {
		return nil
	}
	return heap.Pop(&eq.events).(*Event)
}

// Remove takes a still-queued event out of the queue.
func (eq *EventQueue) Remove(evt *Event) bool {
	if evt.index < 0 || evt.index >= len(eq.events) || eq.events[evt.index] != evt {
		return false
	}
	heap.Remove(&eq.events, evt.index)
	return true
}

// Peek returns the earliest event without removing it
func (eq *EventQueue) Peek() *Event {
	if len(eq.events) == 0 {
		return nil
	}
	return eq.events[0]
}

// IsEmpty returns true if the queue is empty
func (eq *EventQueue) IsEmpty() bool {
	return len(eq.events) == 0
}

// Len returns the number of events in the queue
func (eq *EventQueue) Len() int {
	return len(eq.events)
}
