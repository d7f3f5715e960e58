package streamchat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	stream "github.com/GetStream/stream-chat-go/v5"
)

const (
	// SupportChannelType is the channel type the widget opens.
	SupportChannelType   = "messaging"
	supportChannelPrefix = "support-"
)

var (
	ErrInvalidUser = errors.New("user id is required")
	ErrInvalidCID  = errors.New("invalid channel cid")
	ErrUpstream    = errors.New("hosted chat request failed")
)

// API is the subset of the Stream server SDK the relay uses.
type API interface {
	UpsertUser(ctx context.Context, user *stream.User) error
	CreateToken(userID string, expire time.Time) (string, error)
	TruncateChannel(ctx context.Context, channelType, channelID string) error
	SendEvent(ctx context.Context, channelType, channelID string, eventType stream.EventType, userID string) error
	SendMessage(ctx context.Context, channelType, channelID string, msg *stream.Message, userID string) error
	VerifyWebhook(body, signature []byte) bool
}

// UserProfile is the widget user a token is issued for.
type UserProfile struct {
	ID    string
	Name  string
	Image string
}

// TokenGrant is what the widget needs to connect to the hosted chat.
type TokenGrant struct {
	APIKey string            `json:"api_key"`
	Token  string            `json:"token"`
	User   map[string]string `json:"user"`
}

// Client wraps the hosted chat API with the bot identity.
type Client struct {
	api       API
	apiKey    string
	botUserID string
	botName   string
	tokenTTL  time.Duration
}

// Options configures a Client.
type Options struct {
	APIKey    string
	BotUserID string
	BotName   string
	// TokenTTL of zero issues tokens without expiry.
	TokenTTL time.Duration
}

// NewClient builds a Client on top of an API implementation.
func NewClient(api API, opts Options) *Client {
	return &Client{
		api:       api,
		apiKey:    opts.APIKey,
		botUserID: opts.BotUserID,
		botName:   opts.BotName,
		tokenTTL:  opts.TokenTTL,
	}
}

// BotUserID returns the user id the relay posts as.
func (c *Client) BotUserID() string { return c.botUserID }

// EnsureBotUser upserts the bot so its messages render with a name.
func (c *Client) EnsureBotUser(ctx context.Context) error {
	user := &stream.User{ID: c.botUserID, Name: c.botName}
	if err := c.api.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("%w: upsert bot user: %v", ErrUpstream, err)
	}
	return nil
}

// IssueToken upserts the widget user and signs a token for it.
func (c *Client) IssueToken(ctx context.Context, profile UserProfile) (*TokenGrant, error) {
	if strings.TrimSpace(profile.ID) == "" {
		return nil, ErrInvalidUser
	}

	user := map[string]string{"id": profile.ID}
	if profile.Name != "" {
		user["name"] = profile.Name
	}
	if profile.Image != "" {
		user["image"] = profile.Image
	}

	if err := c.api.UpsertUser(ctx, &stream.User{ID: profile.ID, Name: profile.Name, Image: profile.Image}); err != nil {
		log.Printf("ERROR [StreamChat] IssueToken: upsert failed for user %s: %v", profile.ID, err)
		return nil, fmt.Errorf("%w: upsert user: %v", ErrUpstream, err)
	}

	var expire time.Time
	if c.tokenTTL > 0 {
		expire = time.Now().Add(c.tokenTTL)
	}
	token, err := c.api.CreateToken(profile.ID, expire)
	if err != nil {
		log.Printf("ERROR [StreamChat] IssueToken: token creation failed for user %s: %v", profile.ID, err)
		return nil, fmt.Errorf("%w: create token: %v", ErrUpstream, err)
	}

	return &TokenGrant{APIKey: c.apiKey, Token: token, User: user}, nil
}

// ClearChannel deletes every message in the user's support channel.
func (c *Client) ClearChannel(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	if err := c.api.TruncateChannel(ctx, SupportChannelType, SupportChannelID(userID)); err != nil {
		return fmt.Errorf("%w: truncate channel: %v", ErrUpstream, err)
	}
	log.Printf("[StreamChat] Cleared chat for user: %s", userID)
	return nil
}

// VerifyWebhook checks the x-signature header against the raw body.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return c.api.VerifyWebhook(body, []byte(signature))
}

func (c *Client) StartTyping(ctx context.Context, cid string) error {
	return c.sendEvent(ctx, cid, stream.EventTypingStart)
}

func (c *Client) StopTyping(ctx context.Context, cid string) error {
	return c.sendEvent(ctx, cid, stream.EventTypingStop)
}

func (c *Client) sendEvent(ctx context.Context, cid string, eventType stream.EventType) error {
	channelType, channelID, err := ParseCID(cid)
	if err != nil {
		return err
	}
	if err := c.api.SendEvent(ctx, channelType, channelID, eventType, c.botUserID); err != nil {
		return fmt.Errorf("%w: send %s: %v", ErrUpstream, eventType, err)
	}
	return nil
}

// SendBotMessage posts text into the channel as the bot, flagged as AI generated.
func (c *Client) SendBotMessage(ctx context.Context, cid, text string) error {
	channelType, channelID, err := ParseCID(cid)
	if err != nil {
		return err
	}
	msg := &stream.Message{
		Text:      text,
		ExtraData: map[string]interface{}{"ai_generated": true},
	}
	if err := c.api.SendMessage(ctx, channelType, channelID, msg, c.botUserID); err != nil {
		return fmt.Errorf("%w: send message: %v", ErrUpstream, err)
	}
	return nil
}

// ParseCID splits "messaging:support-x" on the first colon.
func ParseCID(cid string) (channelType, channelID string, err error) {
	channelType, channelID, ok := strings.Cut(cid, ":")
	if !ok || channelType == "" || channelID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCID, cid)
	}
	return channelType, channelID, nil
}

// SupportChannelID is the per-user support channel the widget joins.
func SupportChannelID(userID string) string {
	return supportChannelPrefix + userID
}
