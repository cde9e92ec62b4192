package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/common"
	"github.com/dmitrijs2005/ballotkeeper/internal/dbx"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/models"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/reconciliation"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/tickets"
	"github.com/dmitrijs2005/ballotkeeper/internal/server/repositories/voters"
)

// --- in-memory repositories ---

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.VotingSession
	tickets  map[string]*models.Ticket
	items    []models.ReconciliationItem

	createErr       error
	insertErr       map[string]error // by user id
	updateStatusErr error
	setStartedErr   error
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  map[string]*models.VotingSession{},
		tickets:   map[string]*models.Ticket{},
		insertErr: map[string]error{},
	}
}

type fakeManager struct{ st *memStore }

func (f fakeManager) RunMigrations(context.Context, *sql.DB) error     { return nil }
func (f fakeManager) Sessions(dbx.DBTX) sessions.Repository             { return memSessions{f.st} }
func (f fakeManager) Tickets(dbx.DBTX) tickets.Repository               { return memTickets{f.st} }
func (f fakeManager) Voters(dbx.DBTX) voters.Repository                 { return nil }
func (f fakeManager) Reconciliation(dbx.DBTX) reconciliation.Repository { return memItems{f.st} }

type memSessions struct{ st *memStore }

func (r memSessions) Create(_ context.Context, s *models.VotingSession) (*models.VotingSession, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.createErr != nil {
		return nil, r.st.createErr
	}
	for _, existing := range r.st.sessions {
		if existing.LedgerSessionID == s.LedgerSessionID {
			return nil, common.ErrAlreadyExists
		}
	}
	cp := *s
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.st.sessions[s.ID] = &cp
	out := cp
	return &out, nil
}

func (r memSessions) Get(_ context.Context, id string) (*models.VotingSession, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (r memSessions) List(context.Context) ([]models.SessionSummary, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.SessionSummary
	for _, s := range r.st.sessions {
		n := 0
		for _, t := range r.st.tickets {
			if t.SessionID == s.ID {
				n++
			}
		}
		out = append(out, models.SessionSummary{VotingSession: *s, TicketCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memSessions) ListActive(context.Context) ([]models.VotingSession, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.VotingSession
	for _, s := range r.st.sessions {
		if !s.Archived {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memSessions) UpdateDetails(_ context.Context, id, title, description string) (*models.VotingSession, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	s.Title, s.Description = title, description
	out := *s
	return &out, nil
}

func (r memSessions) UpdateStatus(_ context.Context, id string, from, to models.SessionStatus) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.updateStatusErr != nil {
		return r.st.updateStatusErr
	}
	s, ok := r.st.sessions[id]
	if !ok || s.Status != from {
		return common.ErrConflict
	}
	s.Status = to
	if to == models.StatusStarted {
		s.Started = true
	}
	if to == models.StatusArchived {
		s.Archived = true
	}
	return nil
}

func (r memSessions) SetStarted(_ context.Context, id string, started bool) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.setStartedErr != nil {
		return r.st.setStartedErr
	}
	s, ok := r.st.sessions[id]
	if !ok {
		return common.ErrNotFound
	}
	s.Started = started
	return nil
}

func (r memSessions) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.sessions[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.st.sessions, id)
	for k, t := range r.st.tickets {
		if t.SessionID == id {
			delete(r.st.tickets, k)
		}
	}
	return nil
}

func (r memSessions) DeleteAll(context.Context) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := int64(len(r.st.sessions))
	r.st.sessions = map[string]*models.VotingSession{}
	return n, nil
}

type memTickets struct{ st *memStore }

func (r memTickets) Insert(_ context.Context, t *models.Ticket) (*models.Ticket, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.insertErr[t.UserID]; err != nil {
		return nil, err
	}
	for _, existing := range r.st.tickets {
		if existing.SessionID == t.SessionID && existing.UserID == t.UserID {
			return nil, common.ErrAlreadyExists
		}
	}
	cp := *t
	r.st.tickets[t.ID] = &cp
	return t, nil
}

func (r memTickets) ListUserIDs(_ context.Context, sessionID string) ([]string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var ids []string
	for _, t := range r.st.tickets {
		if t.SessionID == sessionID {
			ids = append(ids, t.UserID)
		}
	}
	return ids, nil
}

func (r memTickets) Count(_ context.Context, sessionID string) (int, error) {
	ids, _ := r.ListUserIDs(context.Background(), sessionID)
	return len(ids), nil
}

func (r memTickets) CountPendingNotifications(_ context.Context, sessionID string) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := 0
	for _, t := range r.st.tickets {
		if t.SessionID == sessionID && t.NotificationStatus != models.NotificationSent {
			n++
		}
	}
	return n, nil
}

func (r memTickets) UpdateNotification(_ context.Context, id string, status models.NotificationStatus, errText string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.tickets[id]
	if !ok {
		return common.ErrNotFound
	}
	t.NotificationStatus, t.NotificationError = status, errText
	return nil
}

func (r memTickets) DeleteAll(context.Context) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	n := int64(len(r.st.tickets))
	r.st.tickets = map[string]*models.Ticket{}
	return n, nil
}

type memItems struct{ st *memStore }

func (r memItems) Record(_ context.Context, item *models.ReconciliationItem) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, it := range r.st.items {
		if it.Kind == item.Kind && it.SessionID == item.SessionID &&
			it.LedgerSessionID == item.LedgerSessionID && (item.Kind.Condition() || it.Detail == item.Detail) {
			return false, nil
		}
	}
	r.st.items = append(r.st.items, *item)
	return true, nil
}

func (r memItems) ListOpen(context.Context) ([]models.ReconciliationItem, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return append([]models.ReconciliationItem(nil), r.st.items...), nil
}

func (st *memStore) ticketsFor(sessionID string) []models.Ticket {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []models.Ticket
	for _, t := range st.tickets {
		if t.SessionID == sessionID {
			out = append(out, *t)
		}
	}
	return out
}

// --- dispatcher ---

type recordingDispatcher struct {
	mu     sync.Mutex
	sent   map[string]string // email -> token
	failTo map[string]error
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{sent: map[string]string{}, failTo: map[string]error{}}
}

func (d *recordingDispatcher) SendVotingToken(_ context.Context, email, _, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failTo[email]; err != nil {
		return err
	}
	d.sent[email] = token
	return nil
}

// --- object store ---

type memObjectStore struct {
	objects map[string]any
	putErr  error
}

func (s *memObjectStore) PutJSON(_ context.Context, key string, v any) error {
	if s.putErr != nil {
		return s.putErr
	}
	if s.objects == nil {
		s.objects = map[string]any{}
	}
	s.objects[key] = v
	return nil
}

func (s *memObjectStore) PresignGet(_ context.Context, key string) (string, error) {
	return "https://objects.test/" + key + "?sig=x", nil
}
