package resource

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/dronesim/internal/engine"
	"github.com/chrisdamba/dronesim/internal/models"
)

type poolRequest struct {
	ticket *Ticket
	fn     func(*Ticket)
}

// Pool is a bounded resource of identical slots, such as the chefs. Requests
// are admitted strictly in arrival order; there is no priority or preemption.
type Pool struct {
	name     string
	engine   *engine.Engine
	capacity int
	active   int
	queue    []*poolRequest
	held     map[uint64]*Ticket
	nextID   uint64
	acct     Accounting
}

func NewPool(eng *engine.Engine, name string, capacity int) (*Pool, error) {
	if capacity <= 0 {
		return nil, &models.ConfigError{
			Field:  name,
			Reason: fmt.Sprintf("capacity must be positive, got %d", capacity),
		}
	}
	return &Pool{
		name:     name,
		engine:   eng,
		capacity: capacity,
		held:     make(map[uint64]*Ticket),
	}, nil
}

func (p *Pool) Name() string { return p.name }
func (p *Pool) Capacity() int { return p.capacity }
func (p *Pool) Active() int { return p.active }
func (p *Pool) Queued() int { return len(p.queue) }

// BusyTime is the slot-minutes spent occupied, up to the last transition.
func (p *Pool) BusyTime() float64 { return p.acct.BusyTime }

// QueueTime is the request-minutes spent waiting, up to the last transition.
func (p *Pool) QueueTime() float64 { return p.acct.QueueTime }

// Sync brings the accounting up to the current time without a transition.
func (p *Pool) Sync() Accounting {
	p.acct.Update(p.engine.Now(), p.active, len(p.queue))
	return p.acct
}

// Request asks for a slot on behalf of owner. fn resumes once the slot is
// granted, at the earliest in a zero-delay event at the current instant.
func (p *Pool) Request(owner int, fn func(*Ticket)) {
	p.nextID++
	req := &poolRequest{
		ticket: &Ticket{ID: p.nextID, Owner: owner, RequestedAt: p.engine.Now()},
		fn:     fn,
	}

	if p.active < p.capacity && len(p.queue) == 0 {
		p.admit(req)
		return
	}

	p.acct.Update(p.engine.Now(), p.active, len(p.queue))
	p.queue = append(p.queue, req)
	logrus.WithFields(logrus.Fields{
		"pool":     p.name,
		"owner":    owner,
		"queued":   len(p.queue),
		"sim_time": p.engine.Now(),
	}).Debug("request queued")
}

// Release frees the ticket's slot and admits the longest-waiting request.
func (p *Pool) Release(t *Ticket) error {
	if t == nil || p.held[t.ID] != t {
		return fmt.Errorf("%s: %w", p.name, ErrUnknownTicket)
	}
	delete(p.held, t.ID)

	p.acct.Update(p.engine.Now(), p.active, len(p.queue))
	p.active--

	if len(p.queue) > 0 {
		next := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.admit(next)
	}
	return nil
}

func (p *Pool) admit(req *poolRequest) {
	now := p.engine.Now()
	p.acct.Update(now, p.active, len(p.queue))
	p.active++
	if p.active > p.capacity {
		logrus.Panicf("%s: %d slots active, capacity %d", p.name, p.active, p.capacity)
	}

	req.ticket.GrantedAt = now
	p.held[req.ticket.ID] = req.ticket
	p.engine.ScheduleAt(now, func() { req.fn(req.ticket) })
}
