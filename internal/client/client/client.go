package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	v1 "github.com/dmitrijs2005/ballotkeeper/internal/api/v1"
	"github.com/dmitrijs2005/ballotkeeper/internal/common"
)

// Client is the coordinator API as seen by the CLI.
type Client interface {
	Health(ctx context.Context) (*v1.Health, error)

	ListSessions(ctx context.Context) ([]v1.Session, error)
	CreateSession(ctx context.Context, req v1.CreateSession) (*v1.CreateSessionReply, error)
	ViewSession(ctx context.Context, id string) (*v1.SessionView, error)
	UpdateSession(ctx context.Context, id string, req v1.UpdateSession) (*v1.Session, error)
	StartSession(ctx context.Context, id, adminSecret string) (*v1.Session, error)
	CloseSession(ctx context.Context, id string) (*v1.Session, error)
	ArchiveSession(ctx context.Context, id string) (*v1.Session, error)
	DeleteSession(ctx context.Context, id string) error
	Reset(ctx context.Context) (*v1.ResetReply, error)
	Export(ctx context.Context, id string) (*v1.ExportReply, error)
	VerifySecret(ctx context.Context, id, adminSecret string) (bool, error)

	RegisterGroup(ctx context.Context, id, group, adminSecret string) (*v1.RegisterReply, error)
	RegisterRows(ctx context.Context, id, adminSecret string, rows []v1.VoterRow) (*v1.RegisterReply, error)
	Vote(ctx context.Context, id string, req v1.Vote) (*v1.VoteReply, error)

	Reconciliation(ctx context.Context) ([]v1.ReconciliationItem, error)
}

type HTTPClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the server at baseURL (scheme and
// host, no path). accessToken is sent as a bearer token on API routes.
func NewHTTPClient(baseURL, accessToken string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		http:        &http.Client{Timeout: timeout},
	}
}

// envelope mirrors v1.Response with the payload left undecoded.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// route fills the {name} placeholders of an api/v1 route template.
func route(tmpl string, kv ...string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		tmpl = strings.Replace(tmpl, "{"+kv[i]+"}", url.PathEscape(kv[i+1]), 1)
	}
	return v1.APIRoute + tmpl
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode reply: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || env.Status == v1.StatusError {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) Health(ctx context.Context) (*v1.Health, error) {
	var out v1.Health
	if err := c.do(ctx, http.MethodGet, v1.RouteHealth, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListSessions(ctx context.Context) ([]v1.Session, error) {
	var out []v1.Session
	if err := c.do(ctx, http.MethodGet, route(v1.RouteVotings), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateSession(ctx context.Context, req v1.CreateSession) (*v1.CreateSessionReply, error) {
	var out v1.CreateSessionReply
	if err := c.do(ctx, http.MethodPost, route(v1.RouteVotings), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ViewSession(ctx context.Context, id string) (*v1.SessionView, error) {
	var out v1.SessionView
	if err := c.do(ctx, http.MethodGet, route(v1.RouteVoting, "id", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateSession(ctx context.Context, id string, req v1.UpdateSession) (*v1.Session, error) {
	return c.session(ctx, http.MethodPatch, route(v1.RouteVoting, "id", id), req)
}

func (c *HTTPClient) StartSession(ctx context.Context, id, adminSecret string) (*v1.Session, error) {
	return c.session(ctx, http.MethodPost, route(v1.RouteStart, "id", id), v1.AdminSecret{AdminSecret: adminSecret})
}

func (c *HTTPClient) CloseSession(ctx context.Context, id string) (*v1.Session, error) {
	return c.session(ctx, http.MethodPost, route(v1.RouteClose, "id", id), nil)
}

func (c *HTTPClient) ArchiveSession(ctx context.Context, id string) (*v1.Session, error) {
	return c.session(ctx, http.MethodPost, route(v1.RouteArchive, "id", id), nil)
}

func (c *HTTPClient) session(ctx context.Context, method, path string, body any) (*v1.Session, error) {
	var out v1.Session
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, route(v1.RouteVoting, "id", id), nil, nil)
}

func (c *HTTPClient) Reset(ctx context.Context) (*v1.ResetReply, error) {
	var out v1.ResetReply
	if err := c.do(ctx, http.MethodDelete, route(v1.RouteVotings), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Export(ctx context.Context, id string) (*v1.ExportReply, error) {
	var out v1.ExportReply
	if err := c.do(ctx, http.MethodPost, route(v1.RouteExport, "id", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) VerifySecret(ctx context.Context, id, adminSecret string) (bool, error) {
	var out v1.VerifySecretReply
	err := c.do(ctx, http.MethodPost, route(v1.RouteVerifySecret, "id", id), v1.AdminSecret{AdminSecret: adminSecret}, &out)
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (c *HTTPClient) RegisterGroup(ctx context.Context, id, group, adminSecret string) (*v1.RegisterReply, error) {
	var out v1.RegisterReply
	err := c.do(ctx, http.MethodPost, route(v1.RouteGroupVoters, "id", id, "group", group),
		v1.AdminSecret{AdminSecret: adminSecret}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RegisterRows(ctx context.Context, id, adminSecret string, rows []v1.VoterRow) (*v1.RegisterReply, error) {
	var out v1.RegisterReply
	err := c.do(ctx, http.MethodPost, route(v1.RouteUploadVoters, "id", id),
		v1.UploadVoters{AdminSecret: adminSecret, Rows: rows}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Vote(ctx context.Context, id string, req v1.Vote) (*v1.VoteReply, error) {
	var out v1.VoteReply
	if err := c.do(ctx, http.MethodPost, route(v1.RouteVoting, "id", id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Reconciliation(ctx context.Context) ([]v1.ReconciliationItem, error) {
	var out []v1.ReconciliationItem
	if err := c.do(ctx, http.MethodGet, route(v1.RouteReconciliation), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
