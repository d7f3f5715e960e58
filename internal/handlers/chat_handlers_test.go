package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"finstack-backend/internal/routing"
	"finstack-backend/internal/services"

	"github.com/stretchr/testify/require"
)

type fakeAnswerer struct {
	reply *services.Reply
	err   error
}

func (a *fakeAnswerer) Answer(ctx context.Context, userID, text string) (*services.Reply, error) {
	return a.reply, a.err
}

func TestHandleEcho(t *testing.T) {
	h := NewChatHandlers(&fakeAnswerer{})
	rec := do(t, h.HandleEcho, http.MethodPost, "/chat", `{"message":"hello","user_id":"u1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"reply":"Echo: you said 'hello' (user: u1)"}`, rec.Body.String())
}

func TestHandleChat(t *testing.T) {
	h := NewChatHandlers(&fakeAnswerer{reply: &services.Reply{
		Text:     "No tickets found.",
		Route:    routing.TargetJira,
		Keywords: []string{"ticket"},
	}})

	rec := do(t, h.HandleChat, http.MethodPost, "/api/chat", `{"message":"any ticket?","user_id":"u1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"reply":"No tickets found.","route":"jira","keywords":["ticket"]}`, rec.Body.String())

	rec = do(t, h.HandleChat, http.MethodPost, "/api/chat", `{"user_id":"u1"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_ServiceErrors(t *testing.T) {
	h := NewChatHandlers(&fakeAnswerer{err: services.ErrEmptyMessage})
	rec := do(t, h.HandleChat, http.MethodPost, "/api/chat", `{"message":"x","user_id":"u1"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	h = NewChatHandlers(&fakeAnswerer{err: errors.New("boom")})
	rec = do(t, h.HandleChat, http.MethodPost, "/api/chat", `{"message":"x","user_id":"u1"}`, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestValidationMessageUsesJSONNames(t *testing.T) {
	h := NewChatHandlers(&fakeAnswerer{})
	rec := do(t, h.HandleChat, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation failed: user_id: required", decodeBody(t, rec)["error"])

	type tagged struct {
		AccessLevel string `json:"access_level,omitempty" validate:"required"`
		Internal    string `json:"-" validate:"required"`
	}
	err := validate.Struct(tagged{})
	require.Equal(t, "validation failed: access_level: required, Internal: required", validationMessage(err))
}
