package api

import (
	"log"
	"net/http"
	"time"

	"finstack-backend/internal/auth"
	"finstack-backend/internal/config"
	"finstack-backend/internal/handlers"
	"finstack-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	StreamHandler *handlers.StreamHandlers
	ChatHandler   *handlers.ChatHandlers
	AuthHandler   *handlers.AuthHandler
	KBHandler     *handlers.KBHandler
	OpsHandler    *handlers.OpsHandlers
	Config        *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Public Routes ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.ChatHandler != nil {
		r.Post("/chat", deps.ChatHandler.HandleEcho)
		r.Post("/api/chat", deps.ChatHandler.HandleChat)
	} else {
		log.Println("WARN: ChatHandler dependency is nil, skipping /chat and /api/chat routes.")
	}

	// The webhook is public; the handler verifies the X-Signature header.
	if deps.StreamHandler != nil {
		r.Route("/stream", func(r chi.Router) {
			r.Post("/token", deps.StreamHandler.HandleToken)
			r.Post("/clear-chat", deps.StreamHandler.HandleClearChat)
			r.Post("/webhook", deps.StreamHandler.HandleWebhook)
		})
	} else {
		log.Println("WARN: StreamHandler dependency is nil, skipping /stream routes.")
	}

	// --- Admin Routes ---
	if deps.AuthHandler == nil || !deps.Config.AdminEnabled() {
		log.Println("WARN: Admin login not configured, skipping /admin routes.")
		return r
	}

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", deps.AuthHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(JwtAuthMiddleware(deps.Config.JWTSecret))
			r.Use(RequireRole(auth.RoleAdmin))

			if deps.KBHandler != nil {
				r.Route("/knowledge", func(r chi.Router) {
					r.Post("/documents", deps.KBHandler.HandleUploadDocument)
					r.Delete("/documents/{filename}", deps.KBHandler.HandleDeleteDocument)
					r.Get("/search", deps.KBHandler.HandleSearch)
					r.Get("/stats", deps.KBHandler.HandleStats)
				})
			} else {
				log.Println("WARN: KBHandler dependency is nil, skipping /admin/knowledge routes.")
			}

			if deps.OpsHandler != nil {
				r.Get("/jira/tickets", deps.OpsHandler.HandleJiraTickets)
				r.Get("/transcripts/{userID}", deps.OpsHandler.HandleTranscripts)
				r.Get("/integrations", deps.OpsHandler.HandleIntegrations)
				r.Get("/integrations/{name}", deps.OpsHandler.HandleIntegration)
			} else {
				log.Println("WARN: OpsHandler dependency is nil, skipping /admin ops routes.")
			}
		})
	})

	return r
}
