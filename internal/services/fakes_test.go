package services

import (
	"context"
	"slices"
	"sync"

	"finstack-backend/internal/integrations/jira"
	"finstack-backend/internal/llm"
	"finstack-backend/internal/models"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	messages map[string]string
	clearErr error
	cleared  []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{messages: map[string]string{}}
}

func (g *fakeGateway) BotUserID() string { return "FinStackAI" }

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) StartTyping(ctx context.Context, cid string) error {
	g.record("typing.start")
	return nil
}

func (g *fakeGateway) StopTyping(ctx context.Context, cid string) error {
	g.record("typing.stop")
	return nil
}

func (g *fakeGateway) SendBotMessage(ctx context.Context, cid, text string) error {
	g.record("message")
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages[cid] = text
	return nil
}

func (g *fakeGateway) ClearChannel(ctx context.Context, userID string) error {
	if g.clearErr != nil {
		return g.clearErr
	}
	g.cleared = append(g.cleared, userID)
	return nil
}

func (g *fakeGateway) snapshot() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []llm.CompletionRequest
}

func (c *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return c.reply, c.err
}

// fakeJira answers from queued results first, then result.
type fakeJira struct {
	queued []jira.SearchResult
	result jira.SearchResult
	opts   []jira.SearchOptions
}

func (j *fakeJira) SearchTickets(ctx context.Context, opts jira.SearchOptions) jira.SearchResult {
	j.opts = append(j.opts, opts)
	if len(j.queued) > 0 {
		r := j.queued[0]
		j.queued = j.queued[1:]
		return r
	}
	return j.result
}

type fakeNotifier struct {
	sent []string
	to   []string
}

func (n *fakeNotifier) SendChannelMessage(ctx context.Context, text, channelID string) error {
	n.sent = append(n.sent, text)
	n.to = append(n.to, channelID)
	return nil
}

type fakeContext struct {
	text    string
	queries []string
}

func (c *fakeContext) ContextForLLM(ctx context.Context, query string, maxResults int) string {
	c.queries = append(c.queries, query)
	return c.text
}

// memoryStore implements store.KnowledgeStore and store.TranscriptStore in memory.
type memoryStore struct {
	mu        sync.Mutex
	chunks    []models.KnowledgeChunk
	hits      []models.ScoredChunk
	searches  []models.ChunkSearchParams
	exchanges []models.ChatExchange
	upsertErr error
}

func (m *memoryStore) UpsertChunks(ctx context.Context, chunks []models.KnowledgeChunk) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memoryStore) SearchChunks(ctx context.Context, params models.ChunkSearchParams) ([]models.ScoredChunk, error) {
	m.searches = append(m.searches, params)
	return m.hits, nil
}

func (m *memoryStore) DeleteChunksByFilename(ctx context.Context, filename string) (int64, error) {
	before := len(m.chunks)
	m.chunks = slices.DeleteFunc(m.chunks, func(c models.KnowledgeChunk) bool { return c.Filename == filename })
	return int64(before - len(m.chunks)), nil
}

func (m *memoryStore) KnowledgeStats(ctx context.Context) (*models.KnowledgeStats, error) {
	return &models.KnowledgeStats{TotalChunks: len(m.chunks)}, nil
}

func (m *memoryStore) CreateExchange(ctx context.Context, exchange *models.ChatExchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, *exchange)
	return nil
}

func (m *memoryStore) ListExchanges(ctx context.Context, userID string, limit int) ([]models.ChatExchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChatExchange
	for i := len(m.exchanges) - 1; i >= 0 && len(out) < limit; i-- {
		if m.exchanges[i].UserID == userID {
			out = append(out, m.exchanges[i])
		}
	}
	return out, nil
}

func (m *memoryStore) DeleteExchanges(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.exchanges)
	m.exchanges = slices.DeleteFunc(m.exchanges, func(e models.ChatExchange) bool { return e.UserID == userID })
	return int64(before - len(m.exchanges)), nil
}

// fakeEmbedder returns a one-dimensional vector holding the input's length.
type fakeEmbedder struct {
	batches [][]string
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches = append(e.batches, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}
