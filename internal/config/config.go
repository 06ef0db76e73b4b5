package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/turbolytics/historian/internal"
	"github.com/turbolytics/historian/internal/harvester"
	"github.com/turbolytics/historian/internal/retry"
)

const EnvPrefix = "HISTORIAN"

type Logger struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type Global struct {
	Logger Logger `yaml:"logger" mapstructure:"logger"`
}

type Retry struct {
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
}

type Harvester struct {
	ArchiveURI     string   `yaml:"archive_uri" mapstructure:"archive_uri"`
	StateURI       string   `yaml:"state_uri" mapstructure:"state_uri"`
	FlushThreshold int      `yaml:"flush_threshold" mapstructure:"flush_threshold"`
	Parallelism    int      `yaml:"parallelism" mapstructure:"parallelism"`
	WorkGroups     []string `yaml:"work_groups,omitempty" mapstructure:"work_groups"`
	Retry          Retry    `yaml:"retry" mapstructure:"retry"`
}

type AWS struct {
	Region         string `yaml:"region,omitempty" mapstructure:"region"`
	Endpoint       string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

type Historian struct {
	Global    Global    `yaml:"global" mapstructure:"global"`
	Harvester Harvester `yaml:"harvester" mapstructure:"harvester"`
	AWS       AWS       `yaml:"aws" mapstructure:"aws"`
}

// NewViper returns a viper instance with every setting defaulted and bound
// to its HISTORIAN_ environment variable, e.g. harvester.archive_uri is
// read from HISTORIAN_HARVESTER_ARCHIVE_URI.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("global.logger.level", "info")
	v.SetDefault("global.logger.format", "console")
	v.SetDefault("harvester.archive_uri", "")
	v.SetDefault("harvester.state_uri", "")
	v.SetDefault("harvester.flush_threshold", harvester.DefaultFlushThreshold)
	v.SetDefault("harvester.parallelism", 1)
	v.SetDefault("harvester.work_groups", []string{})
	v.SetDefault("harvester.retry.base_delay", retry.DefaultBaseDelay)
	v.SetDefault("harvester.retry.max_delay", retry.DefaultMaxDelay)
	v.SetDefault("harvester.retry.max_attempts", 0)
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("aws.force_path_style", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path, if any, and applies environment
// overrides on top.
func Load(v *viper.Viper, path string) (*Historian, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %q: %w", path, err)
		}
	}

	var h Historian
	if err := v.Unmarshal(&h); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &h, nil
}

// NewHistorianFromFile loads path with environment overrides.
func NewHistorianFromFile(path string) (*Historian, error) {
	return Load(NewViper(), path)
}

func (h *Historian) Validate() error {
	if h.Harvester.ArchiveURI == "" {
		return &harvester.ConfigurationError{
			Field:  "harvester.archive_uri",
			Reason: "an archive destination is required",
		}
	}
	if _, err := internal.ParseLocation(h.Harvester.ArchiveURI); err != nil {
		return &harvester.ConfigurationError{Field: "harvester.archive_uri", Reason: err.Error()}
	}
	if h.Harvester.StateURI != "" {
		if _, err := internal.ParseLocation(h.Harvester.StateURI); err != nil {
			return &harvester.ConfigurationError{Field: "harvester.state_uri", Reason: err.Error()}
		}
	}
	if h.Harvester.FlushThreshold < 1 {
		return &harvester.ConfigurationError{Field: "harvester.flush_threshold", Reason: "must be positive"}
	}
	if h.Harvester.Parallelism < 1 {
		return &harvester.ConfigurationError{Field: "harvester.parallelism", Reason: "must be positive"}
	}
	return nil
}

func (h *Historian) YAML() ([]byte, error) {
	return yaml.Marshal(h)
}

func NewLogger(c Logger) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		l, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, err
		}
		level = l
	}

	cfg := zap.NewDevelopmentConfig()
	if c.Format == "json" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
