// Package config loads runtime configuration for ballotctl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file, passed in by the CLI's --config flag.
//  3. Environment variables prefixed with BALLOTCTL_, e.g. BALLOTCTL_SERVER_URL.
//  4. Command-line flags, applied by the CLI on top of the loaded Config.
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "access_token": "<operator JWT>",
//	  "request_timeout": "30s",
//	  "secret_key": "<shared JWT secret, only needed by `ballotctl token`>"
//	}
package config
