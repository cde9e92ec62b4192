package config

import "time"

// Config holds runtime settings for the ballotctl CLI.
type Config struct {
	ServerURL      string        `envconfig:"SERVER_URL"`
	AccessToken    string        `envconfig:"ACCESS_TOKEN"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT"`
	SecretKey      string        `envconfig:"SECRET_KEY"`
}

func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 30 * time.Second
}

// Load builds a Config from defaults, the JSON file at path (skipped when
// path is empty) and the environment, in that order.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, path); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
