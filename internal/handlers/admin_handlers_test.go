package handlers

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finstack-backend/internal/auth"
	"finstack-backend/internal/integrations"
	"finstack-backend/internal/integrations/jira"
	"finstack-backend/internal/models"
	"finstack-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeAuth struct {
	token string
	err   error
}

func (a *fakeAuth) Login(ctx context.Context, username, password string) (string, error) {
	return a.token, a.err
}

func (a *fakeAuth) TokenTTLSeconds() int64 { return 3600 }

type fakeKnowledge struct {
	hits     []models.ScoredChunk
	err      error
	metas    []services.DocumentMeta
	contents [][]byte
	searches []services.SearchOptions
}

func (k *fakeKnowledge) Search(ctx context.Context, query string, opts services.SearchOptions) ([]models.ScoredChunk, error) {
	k.searches = append(k.searches, opts)
	return k.hits, k.err
}

func (k *fakeKnowledge) IngestFile(ctx context.Context, content []byte, meta services.DocumentMeta) (*models.IngestResponse, error) {
	k.metas = append(k.metas, meta)
	k.contents = append(k.contents, content)
	if k.err != nil {
		return nil, k.err
	}
	return &models.IngestResponse{Status: "success", ChunksCreated: 1, VectorsUpserted: 1, Filename: meta.Filename}, nil
}

func (k *fakeKnowledge) DeleteByFilename(ctx context.Context, filename string) (int64, error) {
	if k.err != nil {
		return 0, k.err
	}
	return 4, nil
}

func (k *fakeKnowledge) Stats(ctx context.Context) (*models.KnowledgeStats, error) {
	return &models.KnowledgeStats{TotalChunks: 9}, k.err
}

type fakeTickets struct {
	result jira.SearchResult
	opts   jira.SearchOptions
}

func (f *fakeTickets) SearchTickets(ctx context.Context, opts jira.SearchOptions) jira.SearchResult {
	f.opts = opts
	return f.result
}

type fakeTranscripts struct {
	exchanges []models.Exchange
	err       error
	limit     int
}

func (f *fakeTranscripts) History(ctx context.Context, userID string, limit int) ([]models.Exchange, error) {
	f.limit = limit
	return f.exchanges, f.err
}

type fakeChecker struct{}

func (fakeChecker) CheckAll(ctx context.Context, timeout time.Duration) []integrations.Status {
	return []integrations.Status{{Name: "slack", Enabled: false, Message: "not configured"}}
}

func (fakeChecker) Check(ctx context.Context, name string, timeout time.Duration) (integrations.Status, error) {
	if name != "slack" {
		return integrations.Status{}, fmt.Errorf("%w: %s", integrations.ErrUnknownIntegration, name)
	}
	return integrations.Status{Name: "slack", Enabled: true, Connected: true, Message: "ok"}, nil
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// --- Login ---

func TestHandleLogin(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{token: "jwt"})
	rec := do(t, h.HandleLogin, http.MethodPost, "/admin/login", `{"username":"admin","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"access_token":"jwt","expires_in":3600}`, rec.Body.String())

	h = NewAuthHandler(&fakeAuth{err: services.ErrInvalidCredentials})
	rec = do(t, h.HandleLogin, http.MethodPost, "/admin/login", `{"username":"admin","password":"bad"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	h = NewAuthHandler(&fakeAuth{err: services.ErrAdminDisabled})
	rec = do(t, h.HandleLogin, http.MethodPost, "/admin/login", `{"username":"admin","password":"pw"}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h.HandleLogin, http.MethodPost, "/admin/login", `{"username":"admin"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Knowledge base ---

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/knowledge/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleUploadDocument(t *testing.T) {
	kb := &fakeKnowledge{}
	h := NewKBHandler(kb)

	req := multipartUpload(t, map[string]string{"doc_type": "knowledge", "confidential": "true", "access_level": "hr_managers_only"},
		"../../handbook.md", []byte("# Handbook"))
	claims := &auth.CustomClaims{Role: auth.RoleAdmin}
	claims.Subject = "ops"
	req = req.WithContext(auth.WithClaims(req.Context(), claims))

	rec := httptest.NewRecorder()
	h.HandleUploadDocument(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Equal(t, services.DocumentMeta{
		Filename:     "handbook.md",
		DocType:      models.DocTypeKnowledge,
		Confidential: true,
		AccessLevel:  "hr_managers_only",
		Extra:        map[string]any{"uploaded_by": "ops"},
	}, kb.metas[0])
	require.Equal(t, []byte("# Handbook"), kb.contents[0])
}

func TestHandleUploadDocument_BadInput(t *testing.T) {
	h := NewKBHandler(&fakeKnowledge{})

	for name, req := range map[string]*http.Request{
		"missing file":     multipartUpload(t, nil, "", nil),
		"bad doc type":     multipartUpload(t, map[string]string{"doc_type": "secrets"}, "a.txt", []byte("x")),
		"bad confidential": multipartUpload(t, map[string]string{"confidential": "maybe"}, "a.txt", []byte("x")),
	} {
		rec := httptest.NewRecorder()
		h.HandleUploadDocument(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	rec := httptest.NewRecorder()
	h = NewKBHandler(&fakeKnowledge{err: services.ErrKnowledgeBaseUnavailable})
	h.HandleUploadDocument(rec, multipartUpload(t, nil, "a.txt", []byte("x")))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleDeleteDocument(t *testing.T) {
	h := NewKBHandler(&fakeKnowledge{})
	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/admin/knowledge/documents/a.txt", nil), "filename", "a.txt")
	rec := httptest.NewRecorder()
	h.HandleDeleteDocument(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"filename":"a.txt","chunks_deleted":4}`, rec.Body.String())

	h = NewKBHandler(&fakeKnowledge{err: services.ErrKBNotFound})
	rec = httptest.NewRecorder()
	h.HandleDeleteDocument(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSearch(t *testing.T) {
	kb := &fakeKnowledge{hits: []models.ScoredChunk{{
		KnowledgeChunk: models.KnowledgeChunk{ID: "emp_001", Content: "Sarah", DocType: models.DocTypeEmployee, Confidential: true, AccessLevel: models.AccessHRManagersOnly},
		Score:          0.75,
	}}}
	h := NewKBHandler(kb)

	rec := do(t, h.HandleSearch, http.MethodGet, "/admin/knowledge/search?q=sarah&top_k=2&doc_type=employee", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t,
		`[{"id":"emp_001","content":"Sarah","score":0.75,"doc_type":"employee","confidential":true,"access_level":"hr_managers_only"}]`,
		rec.Body.String())
	require.Equal(t, services.SearchOptions{TopK: 2, DocType: models.DocTypeEmployee, IncludeConfidential: true}, kb.searches[0])

	rec = do(t, h.HandleSearch, http.MethodGet, "/admin/knowledge/search?q=x&top_k=zero", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStats(t *testing.T) {
	h := NewKBHandler(&fakeKnowledge{})
	rec := do(t, h.HandleStats, http.MethodGet, "/admin/knowledge/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 9, decodeBody(t, rec)["total_chunks"])
}

// --- Ops ---

func TestHandleJiraTickets(t *testing.T) {
	tickets := &fakeTickets{result: jira.SearchResult{Success: true, Tickets: []jira.Ticket{{Key: "FIN-1"}}, Total: 1}}
	h := NewOpsHandlers(tickets, &fakeTranscripts{}, fakeChecker{})

	rec := do(t, h.HandleJiraTickets, http.MethodGet, "/admin/jira/tickets?jql=project+%3D+FIN&max_results=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, jira.SearchOptions{JQL: "project = FIN", MaxResults: 5}, tickets.opts)

	tickets.result = jira.SearchResult{Success: false, Error: "Jira API error: 401 - Unauthorized"}
	rec = do(t, h.HandleJiraTickets, http.MethodGet, "/admin/jira/tickets", "", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "Jira API error: 401 - Unauthorized", decodeBody(t, rec)["error"])
}

func TestHandleTranscripts(t *testing.T) {
	tr := &fakeTranscripts{exchanges: []models.Exchange{{ID: "1", UserID: "u1", Route: "assistant", UserMessage: "hi", Reply: "hello"}}}
	h := NewOpsHandlers(&fakeTickets{}, tr, fakeChecker{})

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/admin/transcripts/u1?limit=9999", nil), "userID", "u1")
	rec := httptest.NewRecorder()
	h.HandleTranscripts(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxTranscriptLimit, tr.limit)

	tr.err = services.ErrTranscriptsDisabled
	rec = httptest.NewRecorder()
	h.HandleTranscripts(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleIntegrations(t *testing.T) {
	h := NewOpsHandlers(&fakeTickets{}, &fakeTranscripts{}, fakeChecker{})
	rec := do(t, h.HandleIntegrations, http.MethodGet, "/admin/integrations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"name":"slack","enabled":false,"connected":false,"message":"not configured"}]`, rec.Body.String())
}

func TestHandleIntegration(t *testing.T) {
	h := NewOpsHandlers(&fakeTickets{}, &fakeTranscripts{}, fakeChecker{})

	rec := httptest.NewRecorder()
	h.HandleIntegration(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/admin/integrations/slack", nil), "name", "slack"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"name":"slack","enabled":true,"connected":true,"message":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.HandleIntegration(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/admin/integrations/teams", nil), "name", "teams"))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "no integration registered with name: teams", decodeBody(t, rec)["error"])
}
