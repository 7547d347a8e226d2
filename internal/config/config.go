package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MVittiS/Sdl3ComputeSample/internal/gpu"
	"github.com/MVittiS/Sdl3ComputeSample/internal/pipeline"
)

// EnvPrefix prefixes every environment override, e.g. COMPUTESAMPLE_DEVICE_DRIVER.
const EnvPrefix = "COMPUTESAMPLE"

// Config represents the application configuration
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type DeviceConfig struct {
	Driver          string `mapstructure:"driver"`
	Adapter         string `mapstructure:"adapter"`
	PowerPreference string `mapstructure:"power_preference"`
	Debug           bool   `mapstructure:"debug"`
	CPUWorkers      int    `mapstructure:"cpu_workers"`
}

type PipelineConfig struct {
	Elements       int           `mapstructure:"elements"`
	Layout         string        `mapstructure:"layout"`
	WorkgroupCount uint32        `mapstructure:"workgroup_count"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxReported    int           `mapstructure:"max_reported"`
	Seed           uint64        `mapstructure:"seed"`
	ShaderDir      string        `mapstructure:"shader_dir"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// Dir is where the config file and logs live by default.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".computesample")
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Driver:          gpu.DriverAuto,
			PowerPreference: "high",
		},
		Pipeline: PipelineConfig{
			Elements:    pipeline.DefaultElements,
			Layout:      gpu.LayoutSplit.String(),
			MaxReported: 10,
			Seed:        1,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load loads configuration from file, environment, and defaults. flags maps
// config keys to command line flags; a flag overrides everything else when
// it was set on the command line.
func Load(cfgFile string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, errors.Wrapf(err, "binding flag --%s", flag.Name)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config")
		}
		// Config file not found is okay, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validDrivers := []string{gpu.DriverAuto, gpu.DriverCPU, gpu.DriverWebGPU}
	if !contains(validDrivers, strings.ToLower(c.Device.Driver)) {
		return fmt.Errorf("device.driver must be one of: %v", validDrivers)
	}

	validPrefs := []string{"high", "low", "default"}
	if !contains(validPrefs, strings.ToLower(c.Device.PowerPreference)) {
		return fmt.Errorf("device.power_preference must be one of: %v", validPrefs)
	}

	if c.Device.CPUWorkers < 0 {
		return errors.New("device.cpu_workers must not be negative")
	}

	if c.Pipeline.Elements <= 0 {
		return errors.New("pipeline.elements must be positive")
	}

	if _, err := gpu.ParseBufferLayout(c.Pipeline.Layout); err != nil {
		return errors.Wrap(err, "pipeline.layout")
	}

	if c.Pipeline.Timeout < 0 {
		return errors.New("pipeline.timeout must not be negative")
	}

	if c.Pipeline.MaxReported < -1 {
		return errors.New("pipeline.max_reported must be -1 (all) or more")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// DeviceOptions translates the device section for gpu.Open.
func (c *Config) DeviceOptions() gpu.Options {
	return gpu.Options{
		Driver:          strings.ToLower(c.Device.Driver),
		Adapter:         c.Device.Adapter,
		PowerPreference: strings.ToLower(c.Device.PowerPreference),
		Debug:           c.Device.Debug,
		Workers:         c.Device.CPUWorkers,
	}
}

// PipelineConfig translates the pipeline section for pipeline.Run.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	layout, err := gpu.ParseBufferLayout(c.Pipeline.Layout)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Elements:       c.Pipeline.Elements,
		Layout:         layout,
		WorkgroupCount: c.Pipeline.WorkgroupCount,
		Timeout:        c.Pipeline.Timeout,
		MaxReported:    c.Pipeline.MaxReported,
		Seed:           c.Pipeline.Seed,
		ShaderDir:      c.Pipeline.ShaderDir,
	}, nil
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Pipeline.ShaderDir = expandPath(c.Pipeline.ShaderDir)
	c.Logging.File = expandPath(c.Logging.File)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("device.driver", cfg.Device.Driver)
	v.SetDefault("device.adapter", cfg.Device.Adapter)
	v.SetDefault("device.power_preference", cfg.Device.PowerPreference)
	v.SetDefault("device.debug", cfg.Device.Debug)
	v.SetDefault("device.cpu_workers", cfg.Device.CPUWorkers)

	v.SetDefault("pipeline.elements", cfg.Pipeline.Elements)
	v.SetDefault("pipeline.layout", cfg.Pipeline.Layout)
	v.SetDefault("pipeline.workgroup_count", cfg.Pipeline.WorkgroupCount)
	v.SetDefault("pipeline.timeout", cfg.Pipeline.Timeout)
	v.SetDefault("pipeline.max_reported", cfg.Pipeline.MaxReported)
	v.SetDefault("pipeline.seed", cfg.Pipeline.Seed)
	v.SetDefault("pipeline.shader_dir", cfg.Pipeline.ShaderDir)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
}
