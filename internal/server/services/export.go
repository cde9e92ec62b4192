package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/logging"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
)

// ObjectStore is where exported results are written.
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, v any) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// ResultsExport is the document written by ResultsExporter.
type ResultsExport struct {
	SessionID       string            `json:"session_id"`
	LedgerSessionID string            `json:"ledger_session_id"`
	Title           string            `json:"title"`
	Candidates      []string          `json:"candidates"`
	Tally           map[string]uint64 `json:"tally"`
	VotersTotal     uint64            `json:"voters_total"`
	VotesCast       uint64            `json:"votes_cast"`
	EndTime         time.Time         `json:"end_time"`
	ExportedAt      time.Time         `json:"exported_at"`
	Drift           []Drift           `json:"drift,omitempty"`
}

type ExportResult struct {
	Key string
	URL string
}

// ResultsExporter snapshots the ledger tally of a finished session into
// object storage.
type ResultsExporter struct {
	reader *ReconciliationReader
	store  ObjectStore
	logger logging.Logger
	now    func() time.Time
}

func NewResultsExporter(reader *ReconciliationReader, store ObjectStore, logger logging.Logger) *ResultsExporter {
	return &ResultsExporter{
		reader: reader,
		store:  store,
		logger: logger.With("module", "export"),
		now:    time.Now,
	}
}

// Export writes the results of a closed or archived session and returns a
// presigned link to them.
func (e *ResultsExporter) Export(ctx context.Context, id string) (*ExportResult, error) {
	mv, err := e.reader.View(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mv.Session.Status.AtLeast(models.StatusClosed) {
		return nil, fmt.Errorf("%w: results are exported after the session closes", common.ErrConflict)
	}
	if mv.Tally == nil {
		return nil, fmt.Errorf("%w: session never started on the ledger", common.ErrConflict)
	}

	now := e.now().UTC()
	doc := &ResultsExport{
		SessionID:       mv.Session.ID,
		LedgerSessionID: mv.Session.LedgerSessionID,
		Title:           mv.Session.Title,
		Candidates:      mv.Session.Candidates,
		Tally:           mv.Tally,
		VotersTotal:     mv.Ledger.VotersTotal,
		VotesCast:       mv.Ledger.VotesCast,
		EndTime:         mv.Ledger.EndTime,
		ExportedAt:      now,
		Drift:           mv.Drift,
	}
	key := fmt.Sprintf("results/%s/%s.json", mv.Session.ID, now.Format("20060102T150405Z"))

	if err := e.store.PutJSON(ctx, key, doc); err != nil {
		return nil, err
	}
	url, err := e.store.PresignGet(ctx, key)
	if err != nil {
		return nil, err
	}
	e.logger.Info(ctx, "results exported", "session_id", id, "key", key)
	return &ExportResult{Key: key, URL: url}, nil
}
