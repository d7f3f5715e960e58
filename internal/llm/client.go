package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// SupportSystemPrompt frames every assistant reply in the widget.
const SupportSystemPrompt = "You are FinStack AI Support. Help users understand dashboards, metrics, " +
	"and financial concepts in this app. Be concise (2-4 sentences), friendly, and avoid heavy legal " +
	"disclaimers unless necessary."

var (
	ErrEmptyCompletion = errors.New("llm returned no completion")
	ErrUpstream        = errors.New("llm request failed")
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = openai.ChatMessageRoleUser
	RoleAssistant Role = openai.ChatMessageRoleAssistant
)

// Turn is one previous message in the conversation.
type Turn struct {
	Role    Role
	Content string
}

// CompletionRequest is a single-shot completion with optional grounding context.
type CompletionRequest struct {
	System  string
	Context string
	History []Turn
	Message string
}

// Client calls an OpenAI-compatible chat completions endpoint (Groq by default).
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// Config for NewClient.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:     openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Complete sends the request and returns the trimmed text of the first choice.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: BuildMessages(req),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			log.Printf("ERROR [LLMClient] Complete: API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
			return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, apiErr.HTTPStatusCode, apiErr.Message)
		}
		log.Printf("ERROR [LLMClient] Complete: %v", err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// BuildMessages orders the prompt as system, context, history, then the user message.
func BuildMessages(req CompletionRequest) []openai.ChatCompletionMessage {
	system := req.System
	if system == "" {
		system = SupportSystemPrompt
	}
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	if strings.TrimSpace(req.Context) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Context,
		})
	}
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})
}
