package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/flagx"
	"github.com/dmitrijs2005/ballotkeeper/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations use timex.Duration so
// both "30s" and integer nanoseconds are accepted. Absent fields keep their
// current value.
type JsonConfig struct {
	HTTPAddr    string `json:"http_addr"`
	DatabaseDSN string `json:"database_dsn"`
	SecretKey   string `json:"secret_key"`
	LogLevel    string `json:"log_level"`

	LedgerDriver          string         `json:"ledger_driver"`
	LedgerRPCURL          string         `json:"ledger_rpc_url"`
	LedgerContractAddress string         `json:"ledger_contract_address"`
	LedgerPrivateKey      string         `json:"ledger_private_key"`
	LedgerChainID         int64          `json:"ledger_chain_id"`
	LedgerGasLimit        uint64         `json:"ledger_gas_limit"`
	LedgerCallTimeout     timex.Duration `json:"ledger_call_timeout"`
	DevLedgerDSN          string         `json:"dev_ledger_dsn"`

	SMTPHost       string `json:"smtp_host"`
	SMTPUser       string `json:"smtp_user"`
	SMTPPassword   string `json:"smtp_password"`
	SMTPFrom       string `json:"smtp_from"`
	SMTPSkipVerify *bool  `json:"smtp_skip_verify"`
	VotingURL      string `json:"voting_url"`

	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	ResultsURLValidity timex.Duration `json:"results_url_validity"`

	ReconcileSchedule string `json:"reconcile_schedule"`
}

// parseJSON overlays the JSON file named by -c / -config, if any.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.LedgerDriver, c.LedgerDriver)
	setString(&config.LedgerRPCURL, c.LedgerRPCURL)
	setString(&config.LedgerContractAddress, c.LedgerContractAddress)
	setString(&config.LedgerPrivateKey, c.LedgerPrivateKey)
	if c.LedgerChainID != 0 {
		config.LedgerChainID = c.LedgerChainID
	}
	if c.LedgerGasLimit != 0 {
		config.LedgerGasLimit = c.LedgerGasLimit
	}
	setDuration(&config.LedgerCallTimeout, c.LedgerCallTimeout)
	setString(&config.DevLedgerDSN, c.DevLedgerDSN)

	setString(&config.SMTPHost, c.SMTPHost)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.SMTPFrom, c.SMTPFrom)
	if c.SMTPSkipVerify != nil {
		config.SMTPSkipVerify = *c.SMTPSkipVerify
	}
	setString(&config.VotingURL, c.VotingURL)

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.ResultsURLValidity, c.ResultsURLValidity)

	setString(&config.ReconcileSchedule, c.ReconcileSchedule)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
