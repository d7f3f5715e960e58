package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"finstack-backend/internal/crypto"
	"finstack-backend/internal/integrations/jira"
	"finstack-backend/internal/llm"
	"finstack-backend/internal/models"
	"finstack-backend/internal/routing"

	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	svc      *ChatService
	gateway  *fakeGateway
	llm      *fakeCompleter
	jira     *fakeJira
	notifier *fakeNotifier
	store    *memoryStore
}

func newChatFixture(t *testing.T, withTranscripts bool) *chatFixture {
	t.Helper()
	router, err := routing.NewKeywordRouter(routing.DefaultJiraKeywords)
	require.NoError(t, err)

	f := &chatFixture{
		gateway:  newFakeGateway(),
		llm:      &fakeCompleter{reply: "Your MRR chart shows recurring revenue."},
		jira:     &fakeJira{},
		notifier: &fakeNotifier{},
		store:    &memoryStore{},
	}
	deps := ChatDependencies{
		Gateway:       f.gateway,
		Router:        router,
		LLM:           f.llm,
		Jira:          f.jira,
		Notifier:      f.notifier,
		TechChannelID: "C-TECH",
		HistoryTurns:  5,
	}
	if withTranscripts {
		box, err := crypto.NewBox(bytes.Repeat([]byte{7}, 32))
		require.NoError(t, err)
		deps.Transcripts = f.store
		deps.Box = box
	}
	f.svc = NewChatService(deps)
	return f
}

func messageEvent(userID, text string) models.StreamWebhookEvent {
	return models.StreamWebhookEvent{
		Type: "message.new",
		CID:  "messaging:support-" + userID,
		Message: &models.StreamMessage{
			Text: text,
			Type: "regular",
			User: &models.StreamUser{ID: userID},
		},
	}
}

// --- Webhook handling ---

func TestHandleStreamEvent_RepliesInOrder(t *testing.T) {
	f := newChatFixture(t, false)

	require.True(t, f.svc.HandleStreamEvent(context.Background(), messageEvent("demo_user_1", "  what is MRR?  ")))
	require.NoError(t, f.svc.Wait(context.Background()))

	require.Equal(t, []string{"typing.start", "typing.stop", "message"}, f.gateway.snapshot())
	require.Equal(t, "Your MRR chart shows recurring revenue.", f.gateway.messages["messaging:support-demo_user_1"])
	require.Equal(t, "what is MRR?", f.llm.reqs[0].Message)
}

func TestHandleStreamEvent_Ignored(t *testing.T) {
	f := newChatFixture(t, false)

	bot := messageEvent("FinStackAI", "hello")
	system := messageEvent("u1", "hello")
	system.Message.Type = "system"
	noCID := messageEvent("u1", "hello")
	noCID.CID = ""
	blank := messageEvent("u1", "   ")
	noUser := messageEvent("u1", "hello")
	noUser.Message.User = nil
	other := messageEvent("u1", "hello")
	other.Type = "message.updated"

	for name, ev := range map[string]models.StreamWebhookEvent{
		"bot author": bot, "system message": system, "missing cid": noCID,
		"blank text": blank, "missing user": noUser, "other event": other,
		"no message": {Type: "message.new", CID: "messaging:x"},
	} {
		require.False(t, f.svc.HandleStreamEvent(context.Background(), ev), name)
	}
	require.NoError(t, f.svc.Wait(context.Background()))
	require.Empty(t, f.gateway.snapshot())
}

func TestHandleStreamEvent_SurvivesCanceledRequest(t *testing.T) {
	f := newChatFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	require.True(t, f.svc.HandleStreamEvent(ctx, messageEvent("u1", "hi")))
	cancel()
	require.NoError(t, f.svc.Wait(context.Background()))
	require.Contains(t, f.gateway.snapshot(), "message")
}

// --- Answering ---

func TestAnswer_LLMFailureFallsBack(t *testing.T) {
	f := newChatFixture(t, false)
	f.llm.err = llm.ErrUpstream

	reply, err := f.svc.Answer(context.Background(), "u1", "how do I export?")
	require.NoError(t, err)
	require.Equal(t, routing.TargetAssistant, reply.Route)
	require.Equal(t,
		"I had trouble reaching the AI engine just now, but I did receive your message:\n\nhow do I export?",
		reply.Text)
}

func TestAnswer_EmptyMessage(t *testing.T) {
	f := newChatFixture(t, false)
	_, err := f.svc.Answer(context.Background(), "u1", " ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestAnswer_JiraRouteNotifiesSlack(t *testing.T) {
	f := newChatFixture(t, false)
	f.jira.result = jira.SearchResult{
		Success: true,
		Tickets: []jira.Ticket{{Key: "FIN-12", Summary: "Export broken", Status: "Open", Priority: "High", Assignee: "Ana", URL: "https://x/browse/FIN-12"}},
		Total:   1,
	}

	reply, err := f.svc.Answer(context.Background(), "u1", "any update on FIN-12 and FIN-7 bug?")
	require.NoError(t, err)
	require.Equal(t, routing.TargetJira, reply.Route)
	require.Equal(t, []string{"bug"}, reply.Keywords)
	require.Contains(t, reply.Text, "**FIN-12** - Export broken")

	require.Equal(t, "key in (FIN-12, FIN-7) ORDER BY created DESC", f.jira.opts[0].JQL)
	require.Equal(t, []string{"C-TECH"}, f.notifier.to)
	require.Contains(t, f.notifier.sent[0], "User asked: _any update on FIN-12 and FIN-7 bug?_")
	require.Empty(t, f.llm.reqs)
}

func TestAnswer_JiraProjectKeyIgnoresLookalikeTokens(t *testing.T) {
	f := newChatFixture(t, false)
	f.svc.deps.JiraProjectKey = "FIN"
	f.jira.result = jira.SearchResult{Success: true, Tickets: []jira.Ticket{{Key: "FIN-3", Summary: "CSV export garbled"}}}

	reply, err := f.svc.Answer(context.Background(), "u1", "any open bugs in the UTF-8 export?")
	require.NoError(t, err)
	require.Len(t, f.jira.opts, 1)
	require.Empty(t, f.jira.opts[0].JQL)
	require.Contains(t, reply.Text, "**FIN-3** - CSV export garbled")
}

func TestAnswer_JiraKeySearchFallsBackToDefaultQuery(t *testing.T) {
	f := newChatFixture(t, false)
	f.jira.queued = []jira.SearchResult{{Success: false, Error: "Jira API error: 400 - Issue does not exist"}}
	f.jira.result = jira.SearchResult{Success: true, Tickets: []jira.Ticket{{Key: "FIN-3", Summary: "CSV export garbled"}}}

	reply, err := f.svc.Answer(context.Background(), "u1", "any open bugs for the UTF-8 CSV export?")
	require.NoError(t, err)
	require.Len(t, f.jira.opts, 2)
	require.Equal(t, "key = UTF-8", f.jira.opts[0].JQL)
	require.Empty(t, f.jira.opts[1].JQL)
	require.Contains(t, reply.Text, "**FIN-3** - CSV export garbled")
	require.Len(t, f.notifier.sent, 1)
}

func TestAnswer_JiraFailureIsReported(t *testing.T) {
	f := newChatFixture(t, false)
	f.jira.result = jira.SearchResult{Success: false, Error: "JIRA_DOMAIN not configured"}

	reply, err := f.svc.Answer(context.Background(), "u1", "show my tickets")
	require.NoError(t, err)
	require.Equal(t, "I couldn't fetch Jira tickets right now: JIRA_DOMAIN not configured", reply.Text)
	require.Empty(t, f.notifier.sent)
	require.Empty(t, f.jira.opts[0].JQL)
}

func TestAnswer_UsesKnowledgeContext(t *testing.T) {
	f := newChatFixture(t, false)
	kb := &fakeContext{text: "Here is relevant information from the knowledge base:\n"}
	f.svc.deps.Knowledge = kb

	_, err := f.svc.Answer(context.Background(), "u1", "what is the PTO policy?")
	require.NoError(t, err)
	require.Equal(t, []string{"what is the PTO policy?"}, kb.queries)
	require.Equal(t, kb.text, f.llm.reqs[0].Context)
}

// --- Transcripts ---

func TestTranscripts_EncryptedAndReplayedAsHistory(t *testing.T) {
	f := newChatFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Answer(ctx, "u1", "first question")
	require.NoError(t, err)
	f.llm.reply = "second answer"
	_, err = f.svc.Answer(ctx, "u1", "second question")
	require.NoError(t, err)

	require.Len(t, f.store.exchanges, 2)
	require.NotContains(t, string(f.store.exchanges[0].EncryptedUserMessage), "first question")

	// The second completion sees the first exchange as history.
	require.Equal(t, []llm.Turn{
		{Role: llm.RoleUser, Content: "first question"},
		{Role: llm.RoleAssistant, Content: "Your MRR chart shows recurring revenue."},
	}, f.llm.reqs[1].History)

	history, err := f.svc.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "second question", history[0].UserMessage)
	require.Equal(t, "second answer", history[0].Reply)
	require.Equal(t, "assistant", history[0].Route)
}

func TestHistory_Disabled(t *testing.T) {
	f := newChatFixture(t, false)
	_, err := f.svc.History(context.Background(), "u1", 10)
	require.ErrorIs(t, err, ErrTranscriptsDisabled)
}

func TestClearChat(t *testing.T) {
	f := newChatFixture(t, true)
	ctx := context.Background()
	_, err := f.svc.Answer(ctx, "u1", "hello")
	require.NoError(t, err)

	require.NoError(t, f.svc.ClearChat(ctx, "u1"))
	require.Equal(t, []string{"u1"}, f.gateway.cleared)
	require.Empty(t, f.store.exchanges)

	f.gateway.clearErr = errors.New("stream down")
	require.Error(t, f.svc.ClearChat(ctx, "u1"))
}

func TestWait_HonoursContext(t *testing.T) {
	f := newChatFixture(t, false)
	f.svc.wg.Add(1)
	defer f.svc.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.svc.Wait(ctx), context.DeadlineExceeded)
}
