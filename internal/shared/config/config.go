package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/nemanja-m/gotransform/pkg/transforms"
)

var validate = validator.New()

// LoggingConfig contains logging-related configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File   string `mapstructure:"file"`
}

// JobConfig describes the transformation applied to every input file.
type JobConfig struct {
	Name        string            `mapstructure:"name"`
	Workers     int               `mapstructure:"workers" validate:"gte=0"`
	MaxRetries  int               `mapstructure:"max_retries_per_file" validate:"gte=0"`
	TaskTimeout time.Duration     `mapstructure:"task_timeout" validate:"gte=0"`
	Transforms  []transforms.Spec `mapstructure:"transforms" validate:"required,min=1,dive"`
}

type InputConfig struct {
	Type          string   `mapstructure:"type" validate:"omitempty,oneof=local s3"`
	Path          string   `mapstructure:"path" validate:"required"`
	Extensions    []string `mapstructure:"extensions"`
	MaxFiles      int      `mapstructure:"max_files" validate:"gte=0"`
	Checkpointing bool     `mapstructure:"checkpointing"`
}

type OutputConfig struct {
	Type string `mapstructure:"type" validate:"omitempty,oneof=local s3"`
	Path string `mapstructure:"path" validate:"required"`
}

// S3Config contains connection settings for S3-compatible object storage.
type S3Config struct {
	Endpoint          string  `mapstructure:"endpoint"`
	AccessKey         string  `mapstructure:"access_key"`
	SecretKey         string  `mapstructure:"secret_key"`
	Token             string  `mapstructure:"token"`
	Bucket            string  `mapstructure:"bucket"`
	Region            string  `mapstructure:"region"`
	Secure            bool    `mapstructure:"secure"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
}

// StatisticsConfig lists the metric keys merged by maximum and minimum
// instead of by sum.
type StatisticsConfig struct {
	MaxKeys []string `mapstructure:"max_keys"`
	MinKeys []string `mapstructure:"min_keys"`
}

// DataConfig groups the sections that coordinator and worker share.
type DataConfig struct {
	Job     JobConfig     `mapstructure:"job"`
	Input   InputConfig   `mapstructure:"input"`
	Output  OutputConfig  `mapstructure:"output"`
	S3      S3Config      `mapstructure:"s3"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks struct constraints and the rules that span sections.
func (c *DataConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	in, out := storageType(c.Input.Type), storageType(c.Output.Type)
	if in != out {
		return fmt.Errorf("input type %q and output type %q must match", in, out)
	}
	if in == "s3" {
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return errors.New("s3 endpoint and bucket are required for s3 input")
		}
	}
	return nil
}

func storageType(t string) string {
	if t == "" {
		return "local"
	}
	return t
}

func setDataDefaults(v *viper.Viper) {
	v.SetDefault("job.name", "gotransform")
	v.SetDefault("job.workers", 1)
	v.SetDefault("job.max_retries_per_file", 3)
	v.SetDefault("job.task_timeout", time.Duration(0))
	v.SetDefault("input.type", "local")
	v.SetDefault("input.path", "./data/in")
	v.SetDefault("input.extensions", []string{".parquet"})
	v.SetDefault("input.max_files", 0)
	v.SetDefault("input.checkpointing", false)
	v.SetDefault("output.type", "local")
	v.SetDefault("output.path", "./data/out")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.secure", true)
	v.SetDefault("s3.requests_per_second", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
}

// load reads an optional YAML file, applies environment overrides with the
// given prefix and unmarshals into out.
func load(v *viper.Viper, configPath, name, envPrefix string, out any) error {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}
