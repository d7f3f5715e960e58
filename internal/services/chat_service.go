package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"finstack-backend/internal/crypto"
	"finstack-backend/internal/integrations/jira"
	"finstack-backend/internal/llm"
	"finstack-backend/internal/models"
	"finstack-backend/internal/routing"
	"finstack-backend/internal/store"

	"github.com/google/uuid"
)

// Custom errors for the chat relay
var (
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrTranscriptsDisabled = errors.New("transcript storage not configured")
)

const (
	streamEventMessageNew = "message.new"
	streamMessageRegular  = "regular"

	llmFallbackPrefix  = "I had trouble reaching the AI engine just now, but I did receive your message:\n\n"
	jiraFailurePrefix  = "I couldn't fetch Jira tickets right now: "
	jiraTicketLimit    = 10
	defaultReplyBudget = 60 * time.Second
)

// ChatGateway is the hosted chat surface the relay writes to.
type ChatGateway interface {
	BotUserID() string
	StartTyping(ctx context.Context, cid string) error
	StopTyping(ctx context.Context, cid string) error
	SendBotMessage(ctx context.Context, cid, text string) error
	ClearChannel(ctx context.Context, userID string) error
}

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type TicketSearcher interface {
	SearchTickets(ctx context.Context, opts jira.SearchOptions) jira.SearchResult
}

type ChannelNotifier interface {
	SendChannelMessage(ctx context.Context, text, channelID string) error
}

type ContextProvider interface {
	ContextForLLM(ctx context.Context, query string, maxResults int) string
}

// ChatDependencies wires the relay. Jira, Notifier, Knowledge, Transcripts
// and Box are optional. JiraProjectKey limits issue keys read from messages
// to that project.
type ChatDependencies struct {
	Gateway        ChatGateway
	Router         *routing.KeywordRouter
	LLM            Completer
	Jira           TicketSearcher
	Notifier       ChannelNotifier
	Knowledge      ContextProvider
	Transcripts    store.TranscriptStore
	Box            *crypto.Box
	JiraProjectKey string
	TechChannelID  string
	HistoryTurns   int
	ReplyTimeout   time.Duration
}

// Reply is the relay's answer to one user message.
type Reply struct {
	Text     string
	Route    routing.Target
	Keywords []string
}

// ChatService relays widget messages to Jira or the LLM and posts the answer back.
type ChatService struct {
	deps ChatDependencies
	wg   sync.WaitGroup
}

func NewChatService(deps ChatDependencies) *ChatService {
	if deps.ReplyTimeout <= 0 {
		deps.ReplyTimeout = defaultReplyBudget
	}
	if (deps.Transcripts == nil) != (deps.Box == nil) {
		log.Println("WARN [ChatService] Transcripts need both a store and an encryption key, disabling transcripts.")
		deps.Transcripts, deps.Box = nil, nil
	}
	return &ChatService{deps: deps}
}

func (s *ChatService) transcriptsEnabled() bool {
	return s.deps.Transcripts != nil && s.deps.Box != nil
}

// HandleStreamEvent schedules a reply for new regular user messages and
// reports whether it did. The reply runs after the caller returns.
func (s *ChatService) HandleStreamEvent(ctx context.Context, event models.StreamWebhookEvent) bool {
	if event.Type != streamEventMessageNew || event.Message == nil {
		return false
	}
	msg := event.Message
	userID := ""
	if msg.User != nil {
		userID = msg.User.ID
	}
	text := strings.TrimSpace(msg.Text)

	switch {
	case userID == s.deps.Gateway.BotUserID():
		return false
	case msg.Type != streamMessageRegular:
		return false
	case event.CID == "" || text == "" || userID == "":
		return false
	}

	// Detach from the webhook request so the reply survives the ack.
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.ReplyTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.replyInChannel(replyCtx, event.CID, userID, text)
	}()
	return true
}

func (s *ChatService) replyInChannel(ctx context.Context, cid, userID, text string) {
	if err := s.deps.Gateway.StartTyping(ctx, cid); err != nil {
		log.Printf("WARN [ChatService] typing.start failed for %s: %v", cid, err)
	}

	reply := s.answer(ctx, userID, cid, text)

	if err := s.deps.Gateway.StopTyping(ctx, cid); err != nil {
		log.Printf("WARN [ChatService] typing.stop failed for %s: %v", cid, err)
	}
	if err := s.deps.Gateway.SendBotMessage(ctx, cid, reply.Text); err != nil {
		log.Printf("ERROR [ChatService] Failed to send reply to %s: %v", cid, err)
	}
}

// Wait blocks until scheduled replies finish or ctx is done.
func (s *ChatService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Answer produces a reply without posting it to the hosted chat.
func (s *ChatService) Answer(ctx context.Context, userID, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	reply := s.answer(ctx, userID, "", text)
	return &reply, nil
}

func (s *ChatService) answer(ctx context.Context, userID, cid, text string) Reply {
	decision := s.deps.Router.Route(text)
	log.Printf("[ChatService] Routing message from %s to %s (keywords: %v)", userID, decision.Target, decision.Keywords)

	var reply Reply
	if decision.Target == routing.TargetJira && s.deps.Jira != nil {
		reply = s.answerFromJira(ctx, text)
	} else {
		decision.Target = routing.TargetAssistant
		reply = s.answerFromLLM(ctx, userID, text)
	}
	reply.Route = decision.Target
	reply.Keywords = decision.Keywords

	s.recordExchange(ctx, userID, cid, text, reply)
	return reply
}

func (s *ChatService) answerFromJira(ctx context.Context, text string) Reply {
	opts := jira.SearchOptions{MaxResults: jiraTicketLimit}
	if keys := routing.ExtractIssueKeys(text, s.deps.JiraProjectKey); len(keys) > 0 {
		opts.JQL = jira.IssueKeysJQL(keys)
	}

	result := s.deps.Jira.SearchTickets(ctx, opts)
	if !result.Success && opts.JQL != "" {
		log.Printf("WARN [ChatService] Issue key search failed (%s), retrying with the default query", result.Error)
		opts.JQL = ""
		result = s.deps.Jira.SearchTickets(ctx, opts)
	}
	if !result.Success {
		log.Printf("WARN [ChatService] Jira search failed: %s", result.Error)
		return Reply{Text: jiraFailurePrefix + result.Error}
	}

	if s.deps.Notifier != nil && s.deps.TechChannelID != "" {
		msg := jira.FormatTicketsForSlack(result.Tickets, text)
		if err := s.deps.Notifier.SendChannelMessage(ctx, msg, s.deps.TechChannelID); err != nil {
			log.Printf("WARN [ChatService] Slack notification failed: %v", err)
		}
	}
	return Reply{Text: jira.FormatTicketsForChat(result.Tickets)}
}

func (s *ChatService) answerFromLLM(ctx context.Context, userID, text string) Reply {
	req := llm.CompletionRequest{
		History: s.recentTurns(ctx, userID),
		Message: text,
	}
	if s.deps.Knowledge != nil {
		req.Context = s.deps.Knowledge.ContextForLLM(ctx, text, DefaultContextChunks)
	}

	completion, err := s.deps.LLM.Complete(ctx, req)
	if err != nil {
		log.Printf("ERROR [ChatService] LLM completion failed for %s: %v", userID, err)
		return Reply{Text: llmFallbackPrefix + text}
	}
	return Reply{Text: completion}
}

// --- Transcripts ---

// recentTurns loads the last exchanges in chronological order.
func (s *ChatService) recentTurns(ctx context.Context, userID string) []llm.Turn {
	if !s.transcriptsEnabled() || s.deps.HistoryTurns <= 0 || userID == "" {
		return nil
	}
	exchanges, err := s.History(ctx, userID, s.deps.HistoryTurns)
	if err != nil {
		log.Printf("WARN [ChatService] Could not load history for %s: %v", userID, err)
		return nil
	}
	slices.Reverse(exchanges)

	turns := make([]llm.Turn, 0, 2*len(exchanges))
	for _, e := range exchanges {
		turns = append(turns,
			llm.Turn{Role: llm.RoleUser, Content: e.UserMessage},
			llm.Turn{Role: llm.RoleAssistant, Content: e.Reply},
		)
	}
	return turns
}

func (s *ChatService) recordExchange(ctx context.Context, userID, cid, text string, reply Reply) {
	if !s.transcriptsEnabled() || userID == "" {
		return
	}
	sealedMsg, err := s.deps.Box.SealString(text)
	if err != nil {
		log.Printf("ERROR [ChatService] Failed to encrypt message for %s: %v", userID, err)
		return
	}
	sealedReply, err := s.deps.Box.SealString(reply.Text)
	if err != nil {
		log.Printf("ERROR [ChatService] Failed to encrypt reply for %s: %v", userID, err)
		return
	}

	exchange := &models.ChatExchange{
		ID:                   uuid.New(),
		UserID:               userID,
		ChannelCID:           cid,
		Route:                string(reply.Route),
		EncryptedUserMessage: sealedMsg,
		EncryptedReply:       sealedReply,
	}
	if err := s.deps.Transcripts.CreateExchange(ctx, exchange); err != nil {
		log.Printf("ERROR [ChatService] Failed to store exchange for %s: %v", userID, err)
	}
}

// History returns the user's decrypted exchanges, newest first.
func (s *ChatService) History(ctx context.Context, userID string, limit int) ([]models.Exchange, error) {
	if !s.transcriptsEnabled() {
		return nil, ErrTranscriptsDisabled
	}
	stored, err := s.deps.Transcripts.ListExchanges(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	exchanges := make([]models.Exchange, 0, len(stored))
	for _, e := range stored {
		msg, err := s.deps.Box.OpenString(e.EncryptedUserMessage)
		if err != nil {
			return nil, fmt.Errorf("decrypting exchange %s: %w", e.ID, err)
		}
		reply, err := s.deps.Box.OpenString(e.EncryptedReply)
		if err != nil {
			return nil, fmt.Errorf("decrypting exchange %s: %w", e.ID, err)
		}
		exchanges = append(exchanges, models.Exchange{
			ID:          e.ID.String(),
			UserID:      e.UserID,
			ChannelCID:  e.ChannelCID,
			Route:       e.Route,
			UserMessage: msg,
			Reply:       reply,
			CreatedAt:   e.CreatedAt,
		})
	}
	return exchanges, nil
}

// ClearChat truncates the user's support channel and drops stored transcripts.
func (s *ChatService) ClearChat(ctx context.Context, userID string) error {
	if err := s.deps.Gateway.ClearChannel(ctx, userID); err != nil {
		log.Printf("ERROR [ChatService] Error clearing chat for %s: %v", userID, err)
		return err
	}
	if s.transcriptsEnabled() {
		if _, err := s.deps.Transcripts.DeleteExchanges(ctx, userID); err != nil {
			log.Printf("WARN [ChatService] Channel cleared but transcripts kept for %s: %v", userID, err)
		}
	}
	return nil
}
