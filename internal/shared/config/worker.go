package config

import (
	"time"

	"github.com/spf13/viper"
)

// WorkerConfig contains all configuration for a remote worker process.
type WorkerConfig struct {
	DataConfig `mapstructure:",squash"`

	Worker      WorkerIdentity        `mapstructure:"worker"`
	Coordinator CoordinatorConnConfig `mapstructure:"coordinator"`
}

// WorkerIdentity names the worker. An empty ID gets a random UUID at startup.
type WorkerIdentity struct {
	ID                string        `mapstructure:"id" validate:"omitempty,uuid"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gte=0"`
}

// CoordinatorConnConfig contains coordinator connection configuration.
type CoordinatorConnConfig struct {
	Addr        string           `mapstructure:"addr" validate:"required"`
	PullTimeout time.Duration    `mapstructure:"pull_timeout" validate:"gt=0"`
	GRPC        WorkerGRPCConfig `mapstructure:"grpc"`
}

// WorkerGRPCConfig contains worker gRPC client configuration.
type WorkerGRPCConfig struct {
	KeepaliveTime    time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`
}

func (c *WorkerConfig) Validate() error {
	if err := c.DataConfig.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c.Worker); err != nil {
		return err
	}
	return validate.Struct(c.Coordinator)
}

// LoadWorker loads the worker configuration from the given path.
// If configPath is empty, it looks for worker.yaml in the config/ directory.
// Environment variables with GOTRANSFORM_WORKER_ prefix override config file values.
func LoadWorker(configPath string) (*WorkerConfig, error) {
	v := viper.New()

	setDataDefaults(v)
	v.SetDefault("worker.id", "")
	v.SetDefault("worker.heartbeat_interval", 10*time.Second)
	v.SetDefault("coordinator.addr", "localhost:9090")
	v.SetDefault("coordinator.pull_timeout", 30*time.Second)
	v.SetDefault("coordinator.grpc.keepalive_time", 30*time.Second)
	v.SetDefault("coordinator.grpc.keepalive_timeout", 5*time.Second)

	var cfg WorkerConfig
	if err := load(v, configPath, "worker", "GOTRANSFORM_WORKER", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
