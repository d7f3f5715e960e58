package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
)

var (
	ErrDisabled  = errors.New("slack integration is disabled")
	ErrNoChannel = errors.New("no slack channel specified and no default channel configured")
)

// Config for the Slack notifier. APIURL is only set in tests.
type Config struct {
	BotToken         string
	DefaultChannelID string
	APIURL           string
}

// Notifier posts bot messages to Slack channels and users.
type Notifier struct {
	api            *slack.Client
	defaultChannel string
}

// NewNotifier returns a disabled notifier when no token is configured.
func NewNotifier(cfg Config) *Notifier {
	n := &Notifier{defaultChannel: cfg.DefaultChannelID}
	if cfg.BotToken == "" {
		log.Println("WARN [SlackNotifier] SLACK_BOT_TOKEN not set. Slack notifications are disabled.")
		return n
	}

	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(cfg.APIURL, "/")+"/"))
	}
	n.api = slack.New(cfg.BotToken, opts...)
	return n
}

func (n *Notifier) Enabled() bool { return n.api != nil }

// SendChannelMessage posts text to channelID, or the default channel when empty.
func (n *Notifier) SendChannelMessage(ctx context.Context, text, channelID string) error {
	if !n.Enabled() {
		log.Printf("[SlackNotifier] Disabled, skipping channel message: %.60s", text)
		return ErrDisabled
	}
	if channelID == "" {
		channelID = n.defaultChannel
	}
	if channelID == "" {
		log.Println("WARN [SlackNotifier] SendChannelMessage: no channel given and SLACK_DEFAULT_CHANNEL_ID is not set.")
		return ErrNoChannel
	}
	return n.postMessage(ctx, channelID, text)
}

func (n *Notifier) postMessage(ctx context.Context, channelID, text string) error {
	if !n.Enabled() {
		return ErrDisabled
	}
	_, ts, err := n.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("ERROR [SlackNotifier] postMessage: channel %s: %v", channelID, err)
		return fmt.Errorf("failed to post message to Slack channel %s: %w", channelID, err)
	}
	log.Printf("[SlackNotifier] Sent message to channel %s (ts=%s)", channelID, ts)
	return nil
}

// SendDM opens (or reuses) a direct conversation with userID and posts text.
func (n *Notifier) SendDM(ctx context.Context, userID, text string) error {
	if !n.Enabled() {
		log.Printf("[SlackNotifier] Disabled, skipping DM to %s", userID)
		return ErrDisabled
	}
	channel, _, _, err := n.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		log.Printf("ERROR [SlackNotifier] SendDM: failed to open conversation with %s: %v", userID, err)
		return fmt.Errorf("failed to open Slack conversation with %s: %w", userID, err)
	}
	return n.postMessage(ctx, channel.ID, text)
}

// TestConnection verifies the bot token with auth.test.
func (n *Notifier) TestConnection(ctx context.Context) (string, error) {
	if !n.Enabled() {
		return "", ErrDisabled
	}
	resp, err := n.api.AuthTestContext(ctx)
	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "invalid_auth"):
			return "", errors.New("slack API error: invalid authentication token (bot_token)")
		case strings.Contains(errStr, "not_authed"):
			return "", errors.New("slack API error: not authenticated (check token scopes)")
		}
		return "", fmt.Errorf("failed during Slack connection test (AuthTest): %w", err)
	}
	return fmt.Sprintf("Connected to Slack workspace '%s' as bot '%s' (ID: %s)", resp.Team, resp.User, resp.UserID), nil
}
