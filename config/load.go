package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/wippyai/engine-bridge/errors"
)

// NewViper returns a viper instance with defaults and environment binding
// but no file. Callers may bind flags on it before calling FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration from defaults, the file at path when path is
// not empty, and the environment, then validates it.
func Load(path string) (*Config, error) {
	v := NewViper()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// ReadFile merges the config file at path into v. An empty path is a
// no-op. The format follows the file extension.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Cause(err).Detail("read config file %s", path).Build()
	}
	return nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
