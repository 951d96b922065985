// Package config loads the papply command configuration.
//
// Values are resolved with the precedence defaults < YAML file < environment
// variables < explicit overrides (command-line flags).
package config

import (
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/utkarsh5026/papply/apply"
	"github.com/utkarsh5026/papply/internal/logging"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is prepended to every env tag.
const DefaultEnvPrefix = "PAPPLY_"

// Config is the complete command configuration.
type Config struct {
	Plan    PlanConfig    `yaml:"plan"`
	Logging LoggingConfig `yaml:"logging"`
}

// PlanConfig describes the execution plan.
type PlanConfig struct {
	Mode            string        `yaml:"mode" env:"MODE"`
	Workers         int           `yaml:"workers" env:"WORKERS"`
	FailFast        bool          `yaml:"fail_fast" env:"FAIL_FAST"`
	Partition       string        `yaml:"partition" env:"PARTITION"`
	PinWorkers      bool          `yaml:"pin_workers" env:"PIN_WORKERS"`
	QueueBuffer     int           `yaml:"queue_buffer" env:"QUEUE_BUFFER"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// LoggingConfig describes the logger.
type LoggingConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`
	Format   string `yaml:"format" env:"LOG_FORMAT"`
	Output   string `yaml:"output" env:"LOG_OUTPUT"`
	FilePath string `yaml:"file_path" env:"LOG_FILE"`

	// rotation of file output; zero keeps lumberjack's default
	MaxSizeMB  int `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB"`
	MaxBackups int `yaml:"max_backups" env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Plan: PlanConfig{
			Mode:            "sequential",
			Workers:         runtime.NumCPU(),
			Partition:       "round-robin",
			QueueBuffer:     1,
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
			Output: "stderr",
		},
	}
}

// Loader resolves a Config from its sources.
type Loader struct {
	configPath string
	envPrefix  string
	overrides  map[string]string
}

func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		overrides: make(map[string]string),
	}
}

// WithConfigPath sets the YAML file. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithOverrides sets values by dotted path, e.g. "plan.workers": "4".
func (l *Loader) WithOverrides(values map[string]string) *Loader {
	l.overrides = values
	return l
}

// Load resolves the configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := l.applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	for path, value := range l.overrides {
		if err := setPath(cfg, path, value); err != nil {
			return nil, fmt.Errorf("apply override %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile is NewLoader().WithConfigPath(path).Load().
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (l *Loader) applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := range v.NumField() {
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			if err := l.applyEnv(field); err != nil {
				return err
			}
			continue
		}

		tag := t.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		name := l.envPrefix + tag
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// setPath sets a field addressed by its yaml names, e.g. "logging.level".
func setPath(cfg *Config, path, value string) error {
	v := reflect.ValueOf(cfg).Elem()
	parts := strings.Split(path, ".")

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("unknown config path %q", path)
		}
		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}
		if field.Kind() != reflect.Struct {
			return fmt.Errorf("%s is not a section", part)
		}
		v = field
	}
	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := range t.NumField() {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// Mode returns the parsed execution mode.
func (c *Config) Mode() (apply.Mode, error) {
	switch strings.ToLower(c.Plan.Mode) {
	case "sequential", "seq":
		return apply.Sequential, nil
	case "pool", "workerpool", "worker-pool":
		return apply.WorkerPool, nil
	}
	return apply.Sequential, fmt.Errorf("unknown mode %q", c.Plan.Mode)
}

// Partition returns the parsed partition.
func (c *Config) Partition() (apply.Partition, error) {
	switch strings.ToLower(c.Plan.Partition) {
	case "", "round-robin", "roundrobin":
		return apply.RoundRobin, nil
	case "contiguous":
		return apply.Contiguous, nil
	}
	return apply.RoundRobin, fmt.Errorf("unknown partition %q", c.Plan.Partition)
}

// ExecutionPlan builds the plan the configuration describes. Extra options
// are applied after the configured ones.
func (c *Config) ExecutionPlan(opts ...apply.PlanOption) (apply.Plan, error) {
	mode, err := c.Mode()
	if err != nil {
		return apply.Plan{}, err
	}
	part, err := c.Partition()
	if err != nil {
		return apply.Plan{}, err
	}

	base := []apply.PlanOption{
		apply.WithPlanFailFast(c.Plan.FailFast),
		apply.WithPartition(part),
		apply.WithPinnedWorkers(c.Plan.PinWorkers),
		apply.WithQueueBuffer(c.Plan.QueueBuffer),
	}
	return apply.NewPlan(mode, c.Plan.Workers, append(base, opts...)...)
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:    c.Logging.Level,
		Format:   c.Logging.Format,
		Output:   c.Logging.Output,
		FilePath: c.Logging.FilePath,

		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}
