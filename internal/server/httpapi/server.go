// Package httpapi is the coordinator's JSON API. Handlers only decode,
// delegate to the services and encode; they hold no voting logic.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/roster"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type Sessions interface {
	Create(ctx context.Context, in services.CreateSessionInput) (*services.CreateSessionResult, error)
	Get(ctx context.Context, id string) (*models.VotingSession, error)
	List(ctx context.Context) ([]models.SessionSummary, error)
	UpdateDetails(ctx context.Context, id, title, description string) (*models.VotingSession, error)
	Start(ctx context.Context, id, adminSecret string) (*models.VotingSession, error)
	Close(ctx context.Context, id string) (*models.VotingSession, error)
	Archive(ctx context.Context, id string) (*models.VotingSession, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) (*services.ResetReport, error)
	CastVote(ctx context.Context, id, candidate, token string) (*ledger.Receipt, error)
	VerifyAdminSecret(ctx context.Context, id, adminSecret string) (bool, error)
}

type Issuer interface {
	RegisterVoters(ctx context.Context, sessionID, adminSecret string, voters []models.Voter) (*services.RegistrationReport, error)
}

type Reader interface {
	View(ctx context.Context, id string) (*services.MergedView, error)
	ListOpen(ctx context.Context) ([]models.ReconciliationItem, error)
}

type Exporter interface {
	Export(ctx context.Context, id string) (*services.ExportResult, error)
}

type Roster interface {
	FromGroup(ctx context.Context, groupID string) ([]models.Voter, error)
	FromRows(ctx context.Context, rows []models.VoterRow) ([]models.Voter, []roster.SkippedRow, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the API. Exporter may be nil when no
// object storage is configured.
type Deps struct {
	Sessions Sessions
	Issuer   Issuer
	Reader   Reader
	Exporter Exporter
	Roster   Roster
	Ledger   Pinger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Server struct {
	address   string
	deps      Deps
	logger    logging.Logger
	jwtSecret []byte
}

func NewServer(address string, logger logging.Logger, secretKey string, deps Deps) *Server {
	return &Server{
		address:   address,
		deps:      deps,
		logger:    logger.With("module", "http_server"),
		jwtSecret: []byte(secretKey),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.Use(s.recoverMiddleware)
	r.Use(s.metricsMiddleware)

	r.HandleFunc(v1.RouteHealth, s.handleHealth).Methods(http.MethodGet)
	if s.deps.Gatherer != nil {
		r.Handle(v1.RouteMetrics, promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix(v1.APIRoute).Subrouter()
	api.Use(s.limitBodyMiddleware)
	api.Use(s.accessTokenMiddleware)

	api.HandleFunc(v1.RouteVotings, s.handleList).Methods(http.MethodGet)
	api.HandleFunc(v1.RouteVotings, s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteVotings, s.handleReset).Methods(http.MethodDelete)
	api.HandleFunc(v1.RouteVoting, s.handleView).Methods(http.MethodGet)
	api.HandleFunc(v1.RouteVoting, s.handleVote).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteVoting, s.handleUpdate).Methods(http.MethodPatch)
	api.HandleFunc(v1.RouteVoting, s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc(v1.RouteStart, s.handleStart).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteClose, s.handleClose).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteArchive, s.handleArchive).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteGroupVoters, s.handleRegisterGroup).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteUploadVoters, s.handleRegisterRows).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteVerifySecret, s.handleVerifySecret).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteExport, s.handleExport).Methods(http.MethodPost)
	api.HandleFunc(v1.RouteReconciliation, s.handleReconciliation).Methods(http.MethodGet)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
