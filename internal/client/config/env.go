package config

import "github.com/kelseyhightower/envconfig"

const EnvPrefix = "BALLOTCTL"

func parseEnv(cfg *Config) error {
	return envconfig.Process(EnvPrefix, cfg)
}
