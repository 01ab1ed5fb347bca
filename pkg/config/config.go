// Package config loads and tracks the operator's charm-style configuration.
// The previous snapshot of custom_registries is kept on disk so the TLS
// synchronizer can diff stale material even across process restarts.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Runtime and GPU driver sentinels.
const (
	RuntimeAuto   = "auto"
	RuntimeRunc   = "runc"
	RuntimeNvidia = "nvidia-container-runtime"

	GPUDriverAuto   = "auto"
	GPUDriverNone   = "none"
	GPUDriverNvidia = "nvidia"

	ConfigVersionV1 = "v1"
	ConfigVersionV2 = "v2"
)

// Config mirrors the charm's configuration surface. custom_registries stays
// a raw JSON string here: parsing and validation are the reconciler's job so
// a broken value blocks status instead of failing the load.
type Config struct {
	CustomRegistries string `mapstructure:"custom_registries" json:"custom_registries"`
	Runtime          string `mapstructure:"runtime" json:"runtime"`
	GPUDriver        string `mapstructure:"gpu_driver" json:"gpu_driver"`
	ConfigVersion    string `mapstructure:"config_version" json:"config_version"`
	HTTPProxy        string `mapstructure:"http_proxy" json:"http_proxy"`
	HTTPSProxy       string `mapstructure:"https_proxy" json:"https_proxy"`
	NoProxy          string `mapstructure:"no_proxy" json:"no_proxy"`
}

// Warning is a non-fatal config issue surfaced to the log at startup.
type Warning string

// Load reads the config file at path. A missing file yields pure defaults.
func Load(path string) (*Config, []Warning, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("custom_registries", "[]")
	v.SetDefault("runtime", RuntimeAuto)
	v.SetDefault("gpu_driver", GPUDriverAuto)
	v.SetDefault("config_version", ConfigVersionV1)

	if err := v.ReadInConfig(); err != nil {
		// With an explicit file path viper reports absence as a plain
		// *PathError rather than ConfigFileNotFoundError.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("error decoding config file: %w", err)
	}

	return enforceDefaults(&cfg)
}

// enforceDefaults backfills empty fields and normalizes out-of-range values,
// collecting a warning per substitution.
func enforceDefaults(cfg *Config) (*Config, []Warning, error) {
	var warnings []Warning

	if cfg.CustomRegistries == "" {
		cfg.CustomRegistries = "[]"
	}
	if cfg.Runtime == "" {
		cfg.Runtime = RuntimeAuto
	}

	switch cfg.GPUDriver {
	case GPUDriverAuto, GPUDriverNone, GPUDriverNvidia:
	case "":
		cfg.GPUDriver = GPUDriverAuto
	default:
		// Left as-is: an invalid gpu_driver must surface as a blocked
		// status, not be silently corrected.
	}

	switch cfg.ConfigVersion {
	case ConfigVersionV1, ConfigVersionV2:
	case "":
		cfg.ConfigVersion = ConfigVersionV1
	default:
		warnings = append(warnings, Warning(fmt.Sprintf(
			"unknown config_version %q, falling back to %s", cfg.ConfigVersion, ConfigVersionV1)))
		cfg.ConfigVersion = ConfigVersionV1
	}

	return cfg, warnings, nil
}
