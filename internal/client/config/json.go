package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/ballotkeeper/internal/timex"
)

// JsonConfig is the on-disk form of Config. Absent fields keep their
// current value.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	AccessToken    string         `json:"access_token"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	SecretKey      string         `json:"secret_key"`
}

func parseJSON(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.AccessToken != "" {
		cfg.AccessToken = jc.AccessToken
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SecretKey != "" {
		cfg.SecretKey = jc.SecretKey
	}
	return nil
}
