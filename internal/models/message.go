package models

import "time"

// StreamWebhookEvent is the subset of a hosted chat webhook payload the relay reads.
type StreamWebhookEvent struct {
	Type      string         `json:"type"` // e.g., "message.new"
	CID       string         `json:"cid"`  // e.g., "messaging:support-demo_user_1"
	Message   *StreamMessage `json:"message"`
	User      *StreamUser    `json:"user"`
	CreatedAt time.Time      `json:"created_at"`
}

// StreamMessage is a chat message inside a webhook payload.
type StreamMessage struct {
	ID   string      `json:"id"`
	Text string      `json:"text"`
	Type string      `json:"type"` // "regular", "system", "deleted", ...
	User *StreamUser `json:"user"`
}

// StreamUser identifies a hosted chat user.
type StreamUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Exchange is a decrypted user message and the reply it received.
type Exchange struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ChannelCID  string    `json:"channel_cid,omitempty"`
	Route       string    `json:"route"`
	UserMessage string    `json:"user_message"`
	Reply       string    `json:"reply"`
	CreatedAt   time.Time `json:"created_at"`
}
