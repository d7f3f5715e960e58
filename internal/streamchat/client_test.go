package streamchat

import (
	"context"
	"errors"
	"testing"
	"time"

	stream "github.com/GetStream/stream-chat-go/v5"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	channelType, channelID string
	eventType              stream.EventType
	userID                 string
}

type fakeAPI struct {
	upserted  []*stream.User
	truncated []string
	events    []sentEvent
	messages  []*stream.Message
	tokenExp  time.Time
	upsertErr error
	validSig  string
}

func (f *fakeAPI) UpsertUser(_ context.Context, user *stream.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, user)
	return nil
}

func (f *fakeAPI) CreateToken(userID string, expire time.Time) (string, error) {
	f.tokenExp = expire
	return "token-" + userID, nil
}

func (f *fakeAPI) TruncateChannel(_ context.Context, channelType, channelID string) error {
	f.truncated = append(f.truncated, channelType+":"+channelID)
	return nil
}

func (f *fakeAPI) SendEvent(_ context.Context, channelType, channelID string, eventType stream.EventType, userID string) error {
	f.events = append(f.events, sentEvent{channelType, channelID, eventType, userID})
	return nil
}

func (f *fakeAPI) SendMessage(_ context.Context, _, _ string, msg *stream.Message, _ string) error {
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeAPI) VerifyWebhook(_, signature []byte) bool {
	return string(signature) == f.validSig
}

func newTestClient(api *fakeAPI) *Client {
	return NewClient(api, Options{APIKey: "key", BotUserID: "FinStackAI", BotName: "FinStack AI"})
}

func TestIssueTokenOnlyReturnsProvidedFields(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api)

	grant, err := c.IssueToken(context.Background(), UserProfile{ID: "demo_user_1", Name: "Demo"})
	require.NoError(t, err)
	require.Equal(t, "key", grant.APIKey)
	require.Equal(t, "token-demo_user_1", grant.Token)
	require.Equal(t, map[string]string{"id": "demo_user_1", "name": "Demo"}, grant.User)
	require.Len(t, api.upserted, 1)
	require.True(t, api.tokenExp.IsZero())
}

func TestIssueTokenWithTTL(t *testing.T) {
	api := &fakeAPI{}
	c := NewClient(api, Options{APIKey: "key", BotUserID: "bot", TokenTTL: time.Hour})

	_, err := c.IssueToken(context.Background(), UserProfile{ID: "u1"})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), api.tokenExp, time.Minute)
}

func TestIssueTokenErrors(t *testing.T) {
	c := newTestClient(&fakeAPI{})
	_, err := c.IssueToken(context.Background(), UserProfile{ID: "  "})
	require.ErrorIs(t, err, ErrInvalidUser)

	c = newTestClient(&fakeAPI{upsertErr: errors.New("boom")})
	_, err = c.IssueToken(context.Background(), UserProfile{ID: "u1"})
	require.ErrorIs(t, err, ErrUpstream)
}

func TestClearChannelTruncatesSupportChannel(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api)

	require.NoError(t, c.ClearChannel(context.Background(), "demo_user_1"))
	require.Equal(t, []string{"messaging:support-demo_user_1"}, api.truncated)
	require.ErrorIs(t, c.ClearChannel(context.Background(), ""), ErrInvalidUser)
}

func TestTypingAndBotMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api)
	ctx := context.Background()

	require.NoError(t, c.StartTyping(ctx, "messaging:support-u1"))
	require.NoError(t, c.SendBotMessage(ctx, "messaging:support-u1", "hello"))
	require.NoError(t, c.StopTyping(ctx, "messaging:support-u1"))

	require.Equal(t, []sentEvent{
		{"messaging", "support-u1", stream.EventTypingStart, "FinStackAI"},
		{"messaging", "support-u1", stream.EventTypingStop, "FinStackAI"},
	}, api.events)
	require.Len(t, api.messages, 1)
	require.Equal(t, "hello", api.messages[0].Text)
	require.Equal(t, true, api.messages[0].ExtraData["ai_generated"])

	require.ErrorIs(t, c.SendBotMessage(ctx, "no-colon", "x"), ErrInvalidCID)
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient(&fakeAPI{validSig: "sig"})
	require.True(t, c.VerifyWebhook([]byte("{}"), "sig"))
	require.False(t, c.VerifyWebhook([]byte("{}"), "other"))
	require.False(t, c.VerifyWebhook([]byte("{}"), ""))
}

func TestParseCID(t *testing.T) {
	typ, id, err := ParseCID("messaging:support-a:b")
	require.NoError(t, err)
	require.Equal(t, "messaging", typ)
	require.Equal(t, "support-a:b", id)

	for _, bad := range []string{"", "messaging", ":x", "messaging:"} {
		_, _, err := ParseCID(bad)
		require.ErrorIs(t, err, ErrInvalidCID, bad)
	}
}
