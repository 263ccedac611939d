package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// CoordinatorConfig contains all configuration for the coordinator service.
type CoordinatorConfig struct {
	DataConfig `mapstructure:",squash"`

	Statistics StatisticsConfig `mapstructure:"statistics"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	REST       RESTConfig       `mapstructure:"rest"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
}

// RESTConfig contains REST API server configuration.
type RESTConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// GRPCConfig contains gRPC server configuration.
type GRPCConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Addr             string        `mapstructure:"addr"`
	EnableReflection bool          `mapstructure:"enable_reflection"`
	KeepaliveMinTime time.Duration `mapstructure:"keepalive_min_time"`
	// LeaseTimeout is how long a remote task may go without a heartbeat
	// before it is treated as a transient failure.
	LeaseTimeout time.Duration `mapstructure:"lease_timeout" validate:"gt=0"`
	// PullWait bounds how long a remote pull is parked waiting for work.
	PullWait time.Duration `mapstructure:"pull_wait" validate:"gt=0"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
	JobName        string `mapstructure:"job_name"`
}

// Validate checks the shared sections plus coordinator-only rules.
func (c *CoordinatorConfig) Validate() error {
	if err := c.DataConfig.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c.Metrics); err != nil {
		return err
	}
	if c.GRPC.Enabled {
		if err := validate.Struct(c.GRPC); err != nil {
			return err
		}
	}
	if c.Job.Workers == 0 && !c.GRPC.Enabled {
		return errors.New("job.workers must be at least 1 unless the gRPC server is enabled")
	}
	return nil
}

// LoadCoordinator loads the coordinator configuration from the given path.
// If configPath is empty, it looks for coordinator.yaml in the config/ directory.
// Environment variables with GOTRANSFORM_COORDINATOR_ prefix override config file values.
func LoadCoordinator(configPath string) (*CoordinatorConfig, error) {
	v := viper.New()

	setDataDefaults(v)
	v.SetDefault("statistics.max_keys", []string{"max_file_size"})
	v.SetDefault("statistics.min_keys", []string{"min_file_size"})
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "gotransform")
	v.SetDefault("rest.enabled", false)
	v.SetDefault("rest.addr", ":8080")
	v.SetDefault("rest.read_timeout", 15*time.Second)
	v.SetDefault("rest.write_timeout", 15*time.Second)
	v.SetDefault("rest.idle_timeout", 60*time.Second)
	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("grpc.enable_reflection", true)
	v.SetDefault("grpc.keepalive_min_time", 30*time.Second)
	v.SetDefault("grpc.lease_timeout", 60*time.Second)
	v.SetDefault("grpc.pull_wait", 10*time.Second)

	var cfg CoordinatorConfig
	if err := load(v, configPath, "coordinator", "GOTRANSFORM_COORDINATOR", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
