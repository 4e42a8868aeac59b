package simulator

import (
	"math/rand"

	"github.com/chrisdamba/dronesim/internal/factories"
	"github.com/chrisdamba/dronesim/internal/models"
)

// Sampler is the source of every random quantity in a run. Implementations
// need not validate their draws; the order factory redraws unusable values.
type Sampler interface {
	factories.OrderSampler
	InterArrival() float64
}

// RandomSampler draws from the configured distributions: exponential
// inter-arrival times, normal prep times and order values, and customers
// spread uniformly over a square centred on the kitchen.
type RandomSampler struct {
	rng    *rand.Rand
	config *models.Config
}

func NewRandomSampler(config *models.Config) *RandomSampler {
	return &RandomSampler{
		rng:    rand.New(rand.NewSource(config.Seed)),
		config: config,
	}
}

func (r *RandomSampler) InterArrival() float64 {
	return r.rng.ExpFloat64() / r.config.ArrivalRate
}

func (r *RandomSampler) PrepTime() float64 {
	return r.normal(r.config.PrepTimeMean, r.config.PrepTimeStd)
}

func (r *RandomSampler) OrderValue() float64 {
	return r.normal(r.config.OrderValueMean, r.config.OrderValueStd)
}

func (r *RandomSampler) Location() models.Point {
	return models.Point{
		X: r.uniform(-r.config.CoordinateBound, r.config.CoordinateBound),
		Y: r.uniform(-r.config.CoordinateBound, r.config.CoordinateBound),
	}
}

func (r *RandomSampler) normal(mean, std float64) float64 {
	return mean + std*r.rng.NormFloat64()
}

func (r *RandomSampler) uniform(min, max float64) float64 {
	return min + (max-min)*r.rng.Float64()
}
