package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read into the config.
const EnvPrefix = "DRONESIM"

type CloudStorageConfig struct {
	Provider   string `mapstructure:"provider"`
	BucketName string `mapstructure:"bucket_name"`
	Region     string `mapstructure:"region"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// Config holds every knob of a simulation run. Times are in minutes, distances
// in km and battery quantities in percent.
type Config struct {
	Seed       int64 `mapstructure:"seed"`
	ChefCount  int   `mapstructure:"chef_count"`
	DroneCount int   `mapstructure:"drone_count"`

	ArrivalRate float64 `mapstructure:"arrival_rate"` // orders per minute
	Horizon     float64 `mapstructure:"horizon"`

	PrepTimeMean    float64 `mapstructure:"prep_time_mean"`
	PrepTimeStd     float64 `mapstructure:"prep_time_std"`
	OrderValueMean  float64 `mapstructure:"order_value_mean"`
	OrderValueStd   float64 `mapstructure:"order_value_std"`
	CoordinateBound float64 `mapstructure:"coordinate_bound"`

	DroneSpeed  float64 `mapstructure:"drone_speed"` // km per minute
	LoadTime    float64 `mapstructure:"load_time"`
	TakeoffTime float64 `mapstructure:"takeoff_time"`
	LandTime    float64 `mapstructure:"land_time"`
	PickupTime  float64 `mapstructure:"pickup_time"`

	TakeoffDrain float64 `mapstructure:"takeoff_drain"`
	LandDrain    float64 `mapstructure:"land_drain"`
	PerKmDrain   float64 `mapstructure:"per_km_drain"`
	ChargeRate   float64 `mapstructure:"charge_rate"` // percent per minute

	// DispatchThreshold lets a charging drone leave early once its battery
	// reaches this level. 100 means drones only leave fully charged.
	DispatchThreshold float64 `mapstructure:"dispatch_threshold"`
	CompleteInFlight  bool    `mapstructure:"complete_in_flight"`

	OutputFormat     string             `mapstructure:"output_format"`
	OutputPath       string             `mapstructure:"output_path"`
	OutputFolder     string             `mapstructure:"output_folder"`
	KafkaBrokerList  string             `mapstructure:"kafka_broker_list"`
	KafkaTopicPrefix string             `mapstructure:"kafka_topic_prefix"`
	CloudStorage     CloudStorageConfig `mapstructure:"cloud_storage"`
	Database         DatabaseConfig     `mapstructure:"database"`

	Progress bool   `mapstructure:"progress"`
	LogLevel string `mapstructure:"log_level"`
}

// DefaultConfig returns the reference scenario: an eight hour shift with the
// battery and flight constants of the reference drone model.
func DefaultConfig() *Config {
	return &Config{
		Seed:              42,
		ChefCount:         3,
		DroneCount:        10,
		ArrivalRate:       0.25,
		Horizon:           8 * 60,
		PrepTimeMean:      9,
		PrepTimeStd:       2,
		OrderValueMean:    145,
		OrderValueStd:     41,
		CoordinateBound:   6,
		DroneSpeed:        1,
		LoadTime:          2,
		TakeoffTime:       0.5,
		LandTime:          0.5,
		PickupTime:        2,
		TakeoffDrain:      4,
		LandDrain:         1,
		PerKmDrain:        6,
		ChargeRate:        4,
		DispatchThreshold: FullBattery,
		OutputFormat:      OutputConsole,
		OutputFolder:      "runs",
		KafkaBrokerList:   "localhost:9092",
		KafkaTopicPrefix:  "dronesim",
		LogLevel:          "info",
	}
}

// SetDefaults registers every DefaultConfig value with v so that files, env
// vars and flags only need to override what they change.
func SetDefaults(v *viper.Viper) error {
	var defaults map[string]interface{}
	if err := mapstructure.Decode(DefaultConfig(), &defaults); err != nil {
		return fmt.Errorf("unable to encode defaults: %w", err)
	}
	for key, value := range defaults {
		if nested, ok := value.(map[string]interface{}); ok {
			for k, val := range nested {
				v.SetDefault(key+"."+k, val)
			}
			continue
		}
		v.SetDefault(key, value)
	}
	return nil
}

// LoadConfig initializes and reads the configuration using Viper. An empty
// cfgFile means defaults, environment and bound flags only.
func LoadConfig(cfgFile string) (*Config, error) {
	return LoadConfigFrom(viper.GetViper(), cfgFile)
}

// LoadConfigFrom is LoadConfig on an explicit viper instance.
func LoadConfigFrom(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := SetDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Read in environment variables that match

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports every invalid field at once.
func (cfg *Config) Validate() error {
	var result *multierror.Error
	fail := func(field, reason string) {
		result = multierror.Append(result, &ConfigError{Field: field, Reason: reason})
	}
	positiveInt := func(field string, v int) {
		if v <= 0 {
			fail(field, fmt.Sprintf("must be positive, got %d", v))
		}
	}
	positive := func(field string, v float64) {
		if math.IsNaN(v) || v <= 0 {
			fail(field, fmt.Sprintf("must be positive, got %v", v))
		}
	}
	nonNegative := func(field string, v float64) {
		if math.IsNaN(v) || v < 0 {
			fail(field, fmt.Sprintf("must not be negative, got %v", v))
		}
	}

	positiveInt("chef_count", cfg.ChefCount)
	positiveInt("drone_count", cfg.DroneCount)
	positive("arrival_rate", cfg.ArrivalRate)
	positive("horizon", cfg.Horizon)
	positive("drone_speed", cfg.DroneSpeed)
	positive("charge_rate", cfg.ChargeRate)

	nonNegative("prep_time_std", cfg.PrepTimeStd)
	nonNegative("order_value_std", cfg.OrderValueStd)
	nonNegative("coordinate_bound", cfg.CoordinateBound)
	nonNegative("load_time", cfg.LoadTime)
	nonNegative("takeoff_time", cfg.TakeoffTime)
	nonNegative("land_time", cfg.LandTime)
	nonNegative("pickup_time", cfg.PickupTime)
	nonNegative("takeoff_drain", cfg.TakeoffDrain)
	nonNegative("land_drain", cfg.LandDrain)
	nonNegative("per_km_drain", cfg.PerKmDrain)

	if math.IsNaN(cfg.PrepTimeMean) {
		fail("prep_time_mean", "must be a number")
	}
	if math.IsNaN(cfg.OrderValueMean) {
		fail("order_value_mean", "must be a number")
	}
	if math.IsNaN(cfg.DispatchThreshold) || cfg.DispatchThreshold <= 0 || cfg.DispatchThreshold > FullBattery {
		fail("dispatch_threshold", fmt.Sprintf("must be in (0, 100], got %v", cfg.DispatchThreshold))
	}
	if !IsOutputFormat(cfg.OutputFormat) {
		fail("output_format", fmt.Sprintf("unsupported output format %q", cfg.OutputFormat))
	}
	if cfg.OutputFormat == OutputPostgres && cfg.Database.URL == "" {
		fail("database.url", "required by the postgres output")
	}

	return result.ErrorOrNil()
}

// IsConfigError reports whether err came from Validate.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
