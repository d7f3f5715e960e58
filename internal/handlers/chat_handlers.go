package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"finstack-backend/internal/models"
	"finstack-backend/internal/services"
	"finstack-backend/pkg/httputil"
)

type ChatAnswerer interface {
	Answer(ctx context.Context, userID, text string) (*services.Reply, error)
}

// ChatHandlers serves the direct (non-webhook) chat endpoints.
type ChatHandlers struct {
	chat ChatAnswerer
}

func NewChatHandlers(chat ChatAnswerer) *ChatHandlers {
	return &ChatHandlers{chat: chat}
}

// HandleEcho handles POST /chat, a connectivity check for the widget.
func (h *ChatHandlers) HandleEcho(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	reply := fmt.Sprintf("Echo: you said '%s' (user: %s)", req.Message, req.UserID)
	httputil.RespondJSON(w, http.StatusOK, models.ChatResponse{Reply: reply})
}

// HandleChat handles POST /api/chat.
func (h *ChatHandlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.chat.Answer(r.Context(), req.UserID, req.Message)
	if err != nil {
		log.Printf("ERROR [ChatHandlers] HandleChat for user %s: %v", req.UserID, err)
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			httputil.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to answer message")
		}
		return
	}

	httputil.RespondJSON(w, http.StatusOK, models.ChatResponse{
		Reply:    reply.Text,
		Route:    string(reply.Route),
		Keywords: reply.Keywords,
	})
}
