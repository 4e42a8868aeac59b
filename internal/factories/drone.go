package factories

import (
	"github.com/chrisdamba/dronesim/internal/models"
)

type DroneFactory struct{}

// CreateFleet builds drone_count fully charged drones with ids 0..n-1, all
// sharing the configured battery profile.
func (df *DroneFactory) CreateFleet(config *models.Config) []*models.Drone {
	profile := models.ProfileFromConfig(config)
	drones := make([]*models.Drone, config.DroneCount)
	for i := range drones {
		drones[i] = models.NewDrone(i, profile)
	}
	return drones
}
