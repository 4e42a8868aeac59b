package factories

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/jaswdr/faker"

	"github.com/chrisdamba/dronesim/internal/models"
)

// ErrSampling is returned when a sampler keeps producing unusable values.
var ErrSampling = errors.New("sampling failed")

// maxRedraws bounds how often a single attribute is redrawn.
const maxRedraws = 64

// OrderSampler draws the random attributes of a new order.
type OrderSampler interface {
	PrepTime() float64
	OrderValue() float64
	Location() models.Point
}

type OrderFactory struct {
	sampler OrderSampler
	fake    faker.Faker
	nextID  int
}

// NewOrderFactory seeds its own faker so customer labels repeat across runs
// with the same seed without touching the sampler's stream.
func NewOrderFactory(sampler OrderSampler, seed int64) *OrderFactory {
	return &OrderFactory{
		sampler: sampler,
		fake:    faker.NewWithSeed(rand.NewSource(seed)),
	}
}

// Issued returns how many order ids were handed out.
func (of *OrderFactory) Issued() int {
	return of.nextID
}

// CreateOrder builds the next order, arriving at now. Ids are consecutive
// from 1 and are consumed even when sampling fails, so the returned order
// still carries its id.
func (of *OrderFactory) CreateOrder(now float64) (*models.Order, error) {
	of.nextID++
	order := &models.Order{
		ID:          of.nextID,
		Customer:    of.fake.Person().Name(),
		Status:      models.OrderStatusPlaced,
		ArrivalTime: now,
	}

	prep, err := redraw("prep time", of.sampler.PrepTime, func(v float64) bool { return v >= 0 })
	if err != nil {
		return order, err
	}
	order.PrepTime = prep

	value, err := redraw("order value", of.sampler.OrderValue, func(float64) bool { return true })
	if err != nil {
		return order, err
	}
	order.Value = value

	for i := 0; i < maxRedraws; i++ {
		loc := of.sampler.Location()
		if loc.IsValid() {
			order.Location = loc
			order.Distance = models.Origin.DistanceTo(loc)
			return order, nil
		}
	}
	return order, fmt.Errorf("location: %w after %d draws", ErrSampling, maxRedraws)
}

func redraw(name string, draw func() float64, ok func(float64) bool) (float64, error) {
	for i := 0; i < maxRedraws; i++ {
		v := draw()
		if math.IsNaN(v) || math.IsInf(v, 0) || !ok(v) {
			continue
		}
		return v, nil
	}
	return 0, fmt.Errorf("%s: %w after %d draws", name, ErrSampling, maxRedraws)
}
