package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"finstack-backend/internal/integrations"
	"finstack-backend/internal/integrations/jira"
	"finstack-backend/internal/models"
	"finstack-backend/internal/services"
	"finstack-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 500
	integrationCheckBudget = 10 * time.Second
)

type TicketSearcher interface {
	SearchTickets(ctx context.Context, opts jira.SearchOptions) jira.SearchResult
}

type TranscriptReader interface {
	History(ctx context.Context, userID string, limit int) ([]models.Exchange, error)
}

type IntegrationChecker interface {
	CheckAll(ctx context.Context, timeout time.Duration) []integrations.Status
	Check(ctx context.Context, name string, timeout time.Duration) (integrations.Status, error)
}

// OpsHandlers serves admin views onto Jira, transcripts and integration health.
type OpsHandlers struct {
	jira         TicketSearcher
	transcripts  TranscriptReader
	integrations IntegrationChecker
}

func NewOpsHandlers(j TicketSearcher, t TranscriptReader, i IntegrationChecker) *OpsHandlers {
	return &OpsHandlers{jira: j, transcripts: t, integrations: i}
}

// HandleJiraTickets handles GET /admin/jira/tickets?jql=&max_results=.
func (h *OpsHandlers) HandleJiraTickets(w http.ResponseWriter, r *http.Request) {
	opts := jira.SearchOptions{JQL: r.URL.Query().Get("jql")}
	if v := r.URL.Query().Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.RespondError(w, http.StatusBadRequest, "max_results must be a positive integer")
			return
		}
		opts.MaxResults = n
	}

	result := h.jira.SearchTickets(r.Context(), opts)
	if !result.Success {
		log.Printf("WARN [OpsHandlers] HandleJiraTickets: %s", result.Error)
		httputil.RespondJSON(w, http.StatusBadGateway, result)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, result)
}

// HandleTranscripts handles GET /admin/transcripts/{userID}?limit=.
func (h *OpsHandlers) HandleTranscripts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := defaultTranscriptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	exchanges, err := h.transcripts.History(r.Context(), userID, limit)
	if err != nil {
		log.Printf("ERROR [OpsHandlers] HandleTranscripts for %s: %v", userID, err)
		if errors.Is(err, services.ErrTranscriptsDisabled) {
			httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to load transcripts")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, exchanges)
}

// HandleIntegrations handles GET /admin/integrations.
func (h *OpsHandlers) HandleIntegrations(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, h.integrations.CheckAll(r.Context(), integrationCheckBudget))
}

// HandleIntegration handles GET /admin/integrations/{name}.
func (h *OpsHandlers) HandleIntegration(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, err := h.integrations.Check(r.Context(), name, integrationCheckBudget)
	if err != nil {
		if errors.Is(err, integrations.ErrUnknownIntegration) {
			httputil.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("ERROR [OpsHandlers] HandleIntegration for %s: %v", name, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to check integration")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, status)
}
