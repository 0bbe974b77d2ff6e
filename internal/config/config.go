// Package config loads host runtime configuration from a config file,
// environment variables, and defaults, in that order of increasing
// precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default limits for guest execution.
const (
	DefaultExecBudget = 2 * time.Second
	DefaultLogLevel   = "info"
)

// Config is the host runtime configuration.
type Config struct {
	// PluginPaths are the plugin search paths, earlier paths shadowing
	// later ones.
	PluginPaths []string `mapstructure:"plugin_paths"`
	// ExecBudget bounds the wall-clock time of a single guest call.
	ExecBudget time.Duration `mapstructure:"exec_budget"`
	// LogLevel is the zerolog level name.
	LogLevel string `mapstructure:"log_level"`
	// Watch enables plugin hot reload.
	Watch bool `mapstructure:"watch"`
}

// Load reads configuration. An empty path looks for vail.yaml in the
// user's config directory; a missing file is not an error, environment
// variables (VAIL_*) and defaults still apply.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("plugin_paths", defaultPluginPaths())
	v.SetDefault("exec_budget", DefaultExecBudget)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("watch", false)

	v.SetEnvPrefix("VAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vail")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "vail"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && path != "" {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if !errors.As(err, &notFound) && path == "" {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ExecBudget <= 0 {
		return fmt.Errorf("config: exec_budget must be positive, got %s", c.ExecBudget)
	}
	return nil
}

func defaultPluginPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "vail", "plugins"))
	}
	return paths
}
