package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"finstack-backend/internal/models"
	"finstack-backend/internal/streamchat"
	"finstack-backend/pkg/httputil"
)

const maxWebhookBody = 1 << 20

// StreamGateway is the hosted chat functionality the widget endpoints need.
type StreamGateway interface {
	IssueToken(ctx context.Context, profile streamchat.UserProfile) (*streamchat.TokenGrant, error)
	VerifyWebhook(body []byte, signature string) bool
}

// StreamRelay answers chat messages delivered by webhook.
type StreamRelay interface {
	HandleStreamEvent(ctx context.Context, event models.StreamWebhookEvent) bool
	ClearChat(ctx context.Context, userID string) error
}

type StreamHandlers struct {
	gateway StreamGateway
	relay   StreamRelay
}

func NewStreamHandlers(gateway StreamGateway, relay StreamRelay) *StreamHandlers {
	return &StreamHandlers{gateway: gateway, relay: relay}
}

// HandleToken handles POST /stream/token.
func (h *StreamHandlers) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req models.StreamTokenRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	grant, err := h.gateway.IssueToken(r.Context(), streamchat.UserProfile{ID: req.UserID, Name: req.Name, Image: req.Image})
	if err != nil {
		log.Printf("ERROR [StreamHandlers] HandleToken for user %s: %v", req.UserID, err)
		switch {
		case errors.Is(err, streamchat.ErrInvalidUser):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			httputil.RespondError(w, http.StatusBadGateway, "Failed to issue chat token")
		}
		return
	}
	httputil.RespondJSON(w, http.StatusOK, grant)
}

// HandleClearChat handles POST /stream/clear-chat.
func (h *StreamHandlers) HandleClearChat(w http.ResponseWriter, r *http.Request) {
	var req models.ClearChatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.RespondStatus(w, http.StatusBadRequest, "error", err.Error())
		return
	}

	if err := h.relay.ClearChat(r.Context(), req.UserID); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, streamchat.ErrInvalidUser) {
			status = http.StatusBadRequest
		}
		httputil.RespondStatus(w, status, "error", err.Error())
		return
	}
	httputil.RespondStatus(w, http.StatusOK, "success", "Chat cleared")
}

// HandleWebhook handles POST /stream/webhook. Replies are produced after the ack.
func (h *StreamHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	if !h.gateway.VerifyWebhook(body, r.Header.Get("X-Signature")) {
		log.Printf("WARN [StreamHandlers] HandleWebhook: rejected delivery with invalid signature from %s", r.RemoteAddr)
		httputil.RespondError(w, http.StatusUnauthorized, "Invalid Stream signature")
		return
	}

	var event models.StreamWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if h.relay.HandleStreamEvent(r.Context(), event) {
		log.Printf("[StreamHandlers] HandleWebhook: reply scheduled for %s", event.CID)
	}
	httputil.RespondJSON(w, http.StatusOK, models.WebhookAck{Received: true})
}
