package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rendis/cmdkit/internal/logging"
	"github.com/rendis/cmdkit/internal/process"
)

// Config holds all cmdkit configuration.
// Priority: flags > CMDKIT_* env vars > config file > defaults.
type Config struct {
	DBPath         string        `mapstructure:"db_path"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	Shell          string        `mapstructure:"shell"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	MaxOutputBytes int64         `mapstructure:"max_output_bytes"`
	MaxParallel    int           `mapstructure:"max_parallel"`
	StrictVars     bool          `mapstructure:"strict_vars"`
	LiveOutput     bool          `mapstructure:"live_output"`
}

func cmdkitDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cmdkit"
	}
	return filepath.Join(home, ".cmdkit")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", filepath.Join(cmdkitDir(), "cmdkit.db"))
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")
	v.SetDefault("shell", process.DefaultShell)
	v.SetDefault("command_timeout", process.DefaultTimeout)
	v.SetDefault("max_output_bytes", process.DefaultMaxOutputSize)
	v.SetDefault("max_parallel", 0)
	v.SetDefault("strict_vars", false)
	v.SetDefault("live_output", true)
}

// loadConfig layers the config file (cfgFile, or config.{json,yaml} under
// ~/.cmdkit) and CMDKIT_* env vars over the defaults. A missing default
// config file is not an error; a missing explicit one is.
func loadConfig(v *viper.Viper, cfgFile string) (Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(cmdkitDir())
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CMDKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, errors.New("command_timeout must not be negative"))
	}
	if c.MaxParallel < 0 {
		errs = append(errs, errors.New("max_parallel must not be negative"))
	}
	return errors.Join(errs...)
}
