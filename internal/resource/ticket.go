// Package resource holds the two contended resources of the kitchen: the chef
// pool and the drone fleet. Both hand out tickets to waiting tasks in request
// order and integrate their occupancy over simulated time.
package resource

import (
	"errors"

	"github.com/chrisdamba/dronesim/internal/engine"
	"github.com/chrisdamba/dronesim/internal/models"
)

// ErrUnknownTicket is returned when releasing a ticket the resource did not
// issue, or one that was already released.
var ErrUnknownTicket = errors.New("unknown or released ticket")

// Ticket is the borrowed handle a task holds while it occupies a slot.
type Ticket struct {
	ID          uint64
	Owner       int
	RequestedAt engine.VTime
	GrantedAt   engine.VTime

	// Drone is set on fleet tickets only.
	Drone *models.Drone
}

// Wait is how long the holder queued before being admitted.
func (t *Ticket) Wait() engine.VTime {
	return t.GrantedAt - t.RequestedAt
}
