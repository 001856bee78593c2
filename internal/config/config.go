package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/mdry44280-bot/code-runner-dashboard/internal/logger"
)

// Config is the top-level TOML structure for the daemon.
//
// Example:
//
//	listen = ":8000"
//	scripts_dir = "/var/lib/code-runner/scripts"
//	logs_dir = "/var/lib/code-runner/logs"
//
//	[supervisor]
//	default_interpreter = "python3"
//	restart_pause = "1s"
//
//	[metrics]
//	enabled = true
//	interval = "5s"
//
//	[history]
//	dsn = "sqlite:///var/lib/code-runner/history.db"
type Config struct {
	Listen     string           `mapstructure:"listen"`
	ScriptsDir string           `mapstructure:"scripts_dir"`
	LogsDir    string           `mapstructure:"logs_dir"`
	Log        logger.Config    `mapstructure:"log"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	History    HistoryConfig    `mapstructure:"history"`
}

type SupervisorConfig struct {
	Interpreters       map[string]string `mapstructure:"interpreters"`
	DefaultInterpreter string            `mapstructure:"default_interpreter"`
	RestartPause       time.Duration     `mapstructure:"restart_pause"`
	RestartConcurrency int               `mapstructure:"restart_concurrency"`
	StopConfirmTimeout time.Duration     `mapstructure:"stop_confirm_timeout"`
	ProbeInterval      time.Duration     `mapstructure:"probe_interval"`
}

type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type HistoryConfig struct {
	// DSN selects the sink, e.g. "sqlite:///path/history.db" or
	// ":memory:". Empty disables the history trail.
	DSN string `mapstructure:"dsn"`
}

// Default returns the configuration used when no config file is given.
// The listen port honors the PORT environment variable.
func Default() Config {
	cfg := Config{
		Listen:     ":8000",
		ScriptsDir: "uploaded_scripts",
		LogsDir:    "script_logs",
		Metrics:    MetricsConfig{Enabled: true, Interval: 5 * time.Second},
	}
	if p := os.Getenv("PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 && n < 65536 {
			cfg.Listen = ":" + p
		}
	}
	return cfg
}

// Load reads a TOML config file and applies defaults for unset fields.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.ScriptsDir == "" {
		return fmt.Errorf("scripts_dir must not be empty")
	}
	if c.LogsDir == "" {
		return fmt.Errorf("logs_dir must not be empty")
	}
	if c.Metrics.Enabled && c.Metrics.Interval < 0 {
		return fmt.Errorf("metrics.interval must not be negative")
	}
	return nil
}
