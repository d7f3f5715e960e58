package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// ---------------------------------------------------------------------------
// BuildMessages
// ---------------------------------------------------------------------------

func TestBuildMessagesOrdering(t *testing.T) {
	msgs := BuildMessages(CompletionRequest{
		Context: "kb context",
		History: []Turn{
			{Role: RoleUser, Content: "what is ARR?"},
			{Role: RoleAssistant, Content: "Annual recurring revenue."},
			{Role: RoleUser, Content: "  "},
		},
		Message: "and MRR?",
	})

	require.Len(t, msgs, 5)
	require.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	require.Equal(t, SupportSystemPrompt, msgs[0].Content)
	require.Equal(t, "kb context", msgs[1].Content)
	require.Equal(t, openai.ChatMessageRoleUser, msgs[2].Role)
	require.Equal(t, openai.ChatMessageRoleAssistant, msgs[3].Role)
	require.Equal(t, "and MRR?", msgs[4].Content)
}

func TestBuildMessagesCustomSystemNoContext(t *testing.T) {
	msgs := BuildMessages(CompletionRequest{System: "be brief", Message: "hi"})
	require.Len(t, msgs, 2)
	require.Equal(t, "be brief", msgs[0].Content)
}

// ---------------------------------------------------------------------------
// Complete
// ---------------------------------------------------------------------------

func TestCompleteReturnsTrimmedContent(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer gsk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Revenue is up.  "}}]}`))
	})

	c := NewClient(Config{APIKey: "gsk_test", BaseURL: srv.URL + "/", Model: "llama-3.1-8b-instant", Timeout: 5 * time.Second})
	text, err := c.Complete(context.Background(), CompletionRequest{Message: "how is revenue?"})
	require.NoError(t, err)
	require.Equal(t, "Revenue is up.", text)
	require.Equal(t, "llama-3.1-8b-instant", got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "how is revenue?", got.Messages[1].Content)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	})

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), CompletionRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestCompleteAPIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	})

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), CompletionRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrUpstream)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "rate limited")
}

// ---------------------------------------------------------------------------
// Embed
// ---------------------------------------------------------------------------

func TestEmbedKeepsInputOrder(t *testing.T) {
	var got openai.EmbeddingRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}
		]}`))
	})

	e := NewEmbedder(EmbedderConfig{APIKey: "k", BaseURL: srv.URL, Model: "text-embedding-3-small", Dimensions: 2})
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
	require.Equal(t, 2, got.Dimensions)
	require.Equal(t, openai.EmbeddingModel("text-embedding-3-small"), got.Model)
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"index":0,"embedding":[0.1]}]}`))
	})

	e := NewEmbedder(EmbedderConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_, err := e.Embed(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrUpstream)
}

func TestEmbedNoInput(t *testing.T) {
	e := NewEmbedder(EmbedderConfig{APIKey: "k", Model: "m"})
	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vecs)
}
