package config

import "github.com/kelseyhightower/envconfig"

// EnvPrefix prefixes every environment variable, e.g. BALLOT_HTTP_ADDR.
const EnvPrefix = "BALLOT"

// parseEnv overlays variables that are set; unset ones leave fields alone.
func parseEnv(config *Config) error {
	return envconfig.Process(EnvPrefix, config)
}
