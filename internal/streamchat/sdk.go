package streamchat

import (
	"context"
	"time"

	stream "github.com/GetStream/stream-chat-go/v5"
)

// sdkAPI adapts *stream.Client to API.
type sdkAPI struct {
	client *stream.Client
}

// NewSDK creates the production API backed by the Stream server SDK.
func NewSDK(apiKey, apiSecret string) (API, error) {
	client, err := stream.NewClient(apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	return &sdkAPI{client: client}, nil
}

func (s *sdkAPI) UpsertUser(ctx context.Context, user *stream.User) error {
	_, err := s.client.UpsertUser(ctx, user)
	return err
}

func (s *sdkAPI) CreateToken(userID string, expire time.Time) (string, error) {
	return s.client.CreateToken(userID, expire)
}

func (s *sdkAPI) TruncateChannel(ctx context.Context, channelType, channelID string) error {
	_, err := s.client.Channel(channelType, channelID).Truncate(ctx)
	return err
}

func (s *sdkAPI) SendEvent(ctx context.Context, channelType, channelID string, eventType stream.EventType, userID string) error {
	_, err := s.client.Channel(channelType, channelID).SendEvent(ctx, &stream.Event{Type: eventType}, userID)
	return err
}

func (s *sdkAPI) SendMessage(ctx context.Context, channelType, channelID string, msg *stream.Message, userID string) error {
	_, err := s.client.Channel(channelType, channelID).SendMessage(ctx, msg, userID)
	return err
}

func (s *sdkAPI) VerifyWebhook(body, signature []byte) bool {
	return s.client.VerifyWebhook(body, signature)
}
