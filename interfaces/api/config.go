// Package api wires ruleup from configuration: storage, asset cache, package
// source, telemetry and the upgrade engine.
package api

import (
	domainconfig "github.com/felixgeelhaar/ruleup/domain/config"
	infraconfig "github.com/felixgeelhaar/ruleup/infrastructure/config"
)

// Config is the ruleup configuration.
type Config = domainconfig.Config

// ConfigLoaderOption configures configuration loading.
type ConfigLoaderOption = infraconfig.LoaderOption

// ConfigWithStrictEnv fails loading on unset environment variables.
func ConfigWithStrictEnv(enabled bool) ConfigLoaderOption {
	return infraconfig.WithStrictEnv(enabled)
}

// ConfigWithValidation toggles validation after loading.
func ConfigWithValidation(enabled bool) ConfigLoaderOption {
	return infraconfig.WithValidation(enabled)
}

// LoadConfig loads a configuration file. An empty path looks for a file in
// the default locations and falls back to the default configuration.
func LoadConfig(path string, opts ...ConfigLoaderOption) (*Config, error) {
	return infraconfig.NewLoader(opts...).LoadFile(path)
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	return domainconfig.Default()
}
