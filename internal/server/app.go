// Package server wires the coordinator together: metadata store, ledger
// gateway, mail, object storage, services, scheduler and the HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger/devledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger/ethereum"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/archive"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/config"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/notify"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/roster"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/scheduler"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	ledger    ledger.Gateway
	server    *httpapi.Server
	scheduler *scheduler.Scheduler
}

// openLedger picks the gateway implementation named by the config.
func openLedger(ctx context.Context, c *config.Config, logger logging.Logger) (ledger.Gateway, error) {
	switch c.LedgerDriver {
	case config.LedgerEthereum:
		return ethereum.Dial(ctx, ethereum.Config{
			RPCURL:          c.LedgerRPCURL,
			ContractAddress: c.LedgerContractAddress,
			PrivateKey:      c.LedgerPrivateKey,
			ChainID:         c.LedgerChainID,
			GasLimit:        c.LedgerGasLimit,
			CallTimeout:     c.LedgerCallTimeout,
		}, logger)
	case config.LedgerDev:
		logger.Warn(ctx, "using the development ledger", "dsn", c.DevLedgerDSN)
		return devledger.Open(ctx, c.DevLedgerDSN)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", c.LedgerDriver)
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mx := metrics.New(registry)

	gw, err := openLedger(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger init error: %w", err)
	}
	instrumented := metrics.InstrumentGateway(gw, mx)

	mailer, err := notify.NewSMTPDispatcher(notify.SMTPConfig{
		Host:       c.SMTPHost,
		User:       c.SMTPUser,
		Password:   c.SMTPPassword,
		From:       c.SMTPFrom,
		SkipVerify: c.SMTPSkipVerify,
		VotingURL:  c.VotingURL,
	}, logger)
	if err != nil {
		_ = gw.Close()
		_ = db.Close()
		return nil, fmt.Errorf("mail init error: %w", err)
	}
	if !mailer.IsEnabled() {
		logger.Warn(ctx, "SMTP credentials missing, voter tokens will not be mailed")
	}

	sessions := services.NewSessionService(db, rm, instrumented, logger)
	issuer := services.NewTokenIssuer(db, rm, instrumented, mailer, logger, mx)
	reader := services.NewReconciliationReader(db, rm, instrumented, logger, mx)

	deps := httpapi.Deps{
		Sessions: sessions,
		Issuer:   issuer,
		Reader:   reader,
		Roster:   roster.New(rm.Voters(db), logger),
		Ledger:   instrumented,
		Metrics:  mx,
		Gatherer: registry,
	}

	store, err := archive.NewS3Store(ctx, archive.Config{
		Region:       c.S3Region,
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		Bucket:       c.S3Bucket,
		BaseEndpoint: c.S3BaseEndpoint,
		URLValidity:  c.ResultsURLValidity,
	})
	switch {
	case errors.Is(err, archive.ErrNotConfigured):
		logger.Warn(ctx, "no results bucket configured, export disabled")
	case err != nil:
		_ = gw.Close()
		_ = db.Close()
		return nil, fmt.Errorf("object storage init error: %w", err)
	default:
		deps.Exporter = services.NewResultsExporter(reader, store, logger)
	}

	sched := scheduler.New(logger)
	if err := sched.Schedule("reconcile", c.ReconcileSchedule, 0, reader.Sweep); err != nil {
		_ = gw.Close()
		_ = db.Close()
		return nil, err
	}
	if err := sched.Schedule("close-expired", c.ReconcileSchedule, 0, sessions.CloseExpired); err != nil {
		_ = gw.Close()
		_ = db.Close()
		return nil, err
	}

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		ledger:    gw,
		server:    httpapi.NewServer(c.HTTPAddr, logger, c.SecretKey, deps),
		scheduler: sched,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a signal arrives or the server fails, then releases
// every resource.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	app.scheduler.Start()

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			runErr = err
			cancelFunc()
		}
	}()

	<-ctx.Done()
	wg.Wait()

	app.scheduler.Stop()
	if err := app.ledger.Close(); err != nil {
		app.logger.Error(ctx, "ledger close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
	return runErr
}
