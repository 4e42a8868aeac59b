package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChefCount = 0
	cfg.DroneCount = -1
	cfg.Horizon = 0
	cfg.LandTime = -0.5
	cfg.DispatchThreshold = 120
	cfg.OutputFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	fields := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		var cerr *ConfigError
		require.True(t, errors.As(e, &cerr))
		fields = append(fields, cerr.Field)
	}
	assert.ElementsMatch(t, []string{
		"chef_count", "drone_count", "horizon", "land_time", "dispatch_threshold", "output_format",
	}, fields)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	content := `
seed: 7
chef_count: 2
drone_count: 4
horizon: 120
cloud_storage:
  provider: s3
  bucket_name: runs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfigFrom(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 2, cfg.ChefCount)
	assert.Equal(t, 4, cfg.DroneCount)
	assert.Equal(t, 120.0, cfg.Horizon)
	assert.Equal(t, "s3", cfg.CloudStorage.Provider)
	assert.Equal(t, "runs", cfg.CloudStorage.BucketName)
	// untouched keys keep their defaults
	assert.Equal(t, 9.0, cfg.PrepTimeMean)
	assert.Equal(t, 4.0, cfg.ChargeRate)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DRONESIM_DRONE_COUNT", "12")
	t.Setenv("DRONESIM_DATABASE_URL", "postgres://localhost/sim")

	cfg, err := LoadConfigFrom(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.DroneCount)
	assert.Equal(t, "postgres://localhost/sim", cfg.Database.URL)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chef_count: 0\n"), 0o644))

	_, err := LoadConfigFrom(viper.New(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
