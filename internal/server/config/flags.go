package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/ballotkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string          HTTP bind address (e.g. ":8080")
//	-d string          PostgreSQL DSN
//	-s string          JWT HMAC secret key
//	-v string          log level
//	-ledger string     ledger driver: ethereum | dev
//	-rpc string        ledger node URL
//	-contract string   voting contract address
//	-devledger string  SQLite DSN of the dev ledger
//	-u, -p string      S3 root user / password
//	-b, -g, -e string  S3 bucket / region / base endpoint
//	-sweep string      reconciliation cron spec
//
// Only these flags are picked out of args, so the -c config flag and any
// flags meant for other components do not collide.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{
		"-a", "-d", "-s", "-v", "-ledger", "-rpc", "-contract", "-devledger",
		"-u", "-p", "-b", "-g", "-e", "-sweep",
	})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	fs.StringVar(&config.LedgerDriver, "ledger", config.LedgerDriver, "ledger driver")
	fs.StringVar(&config.LedgerRPCURL, "rpc", config.LedgerRPCURL, "ledger node URL")
	fs.StringVar(&config.LedgerContractAddress, "contract", config.LedgerContractAddress, "voting contract address")
	fs.StringVar(&config.DevLedgerDSN, "devledger", config.DevLedgerDSN, "dev ledger DSN")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.ReconcileSchedule, "sweep", config.ReconcileSchedule, "reconciliation schedule")

	return fs.Parse(args)
}
