package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete loopsched configuration
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
}

// SchedulerConfig controls the schedule search
type SchedulerConfig struct {
	// DebugLength turns on the search trace once the partial schedule
	// reaches this many items (0 = disabled)
	DebugLength int `mapstructure:"debug_length"`
	// Interactive pauses on failure and replays the longest dead end
	Interactive bool `mapstructure:"interactive"`
	// MaxSchedules caps how many schedules `schedule --all` prints
	MaxSchedules int `mapstructure:"max_schedules"`
	// BoostFallback retries with instruction boosting when the strict search fails
	BoostFallback bool `mapstructure:"boost_fallback"`
}

// LoggingConfig controls the slog handler installed by the CLI
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is text or json
	Format string `mapstructure:"format"`
}

// StoreConfig controls the run log
type StoreConfig struct {
	// Path of the SQLite run log. Empty disables recording.
	Path string `mapstructure:"path"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			DebugLength:   0,
			Interactive:   false,
			MaxSchedules:  100,
			BoostFallback: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Store: StoreConfig{
			Path: "",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("scheduler.debug_length", defaults.Scheduler.DebugLength)
	v.SetDefault("scheduler.interactive", defaults.Scheduler.Interactive)
	v.SetDefault("scheduler.max_schedules", defaults.Scheduler.MaxSchedules)
	v.SetDefault("scheduler.boost_fallback", defaults.Scheduler.BoostFallback)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetDefault("store.path", defaults.Store.Path)
}

// New returns a viper instance with defaults, LOOPSCHED_ environment
// overrides and the config file read in. An explicit cfgFile must exist;
// the default locations are optional.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LOOPSCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "loopsched")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loopsched"
	}
	return filepath.Join(home, ".config", "loopsched")
}
