package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finstack-backend/internal/api"
	"finstack-backend/internal/config"
	"finstack-backend/internal/crypto"
	"finstack-backend/internal/handlers"
	"finstack-backend/internal/integrations"
	"finstack-backend/internal/integrations/jira"
	"finstack-backend/internal/integrations/slack"
	"finstack-backend/internal/llm"
	"finstack-backend/internal/routing"
	"finstack-backend/internal/services"
	"finstack-backend/internal/store"
	"finstack-backend/internal/store/postgres"
	"finstack-backend/internal/streamchat"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	log.Println("Starting FinStack Backend...")

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	setupCtx, setupCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer setupCancel()

	// 2. Hosted chat client and bot identity
	sdk, err := streamchat.NewSDK(cfg.StreamAPIKey, cfg.StreamAPISecret)
	if err != nil {
		log.Fatalf("FATAL: Failed to create Stream client: %v", err)
	}
	streamClient := streamchat.NewClient(sdk, streamchat.Options{
		APIKey:    cfg.StreamAPIKey,
		BotUserID: cfg.BotUserID,
		BotName:   cfg.BotName,
	})
	if err := streamClient.EnsureBotUser(setupCtx); err != nil {
		// Replies still go out; the bot just renders without a display name.
		log.Printf("WARN: Could not upsert bot user %s: %v", cfg.BotUserID, err)
	}
	log.Println("Stream client initialized.")

	// 3. LLM, routing and outbound integrations
	llmClient := llm.NewClient(llm.Config{
		APIKey:  cfg.GroqAPIKey,
		BaseURL: cfg.GroqBaseURL,
		Model:   cfg.GroqModel,
		Timeout: cfg.LLMTimeout,
	})
	router, err := routing.NewKeywordRouter(cfg.JiraTriggerKeywords)
	if err != nil {
		log.Fatalf("FATAL: Failed to build keyword router: %v", err)
	}

	jiraClient, err := jira.NewClient(jira.Config{
		Domain:     cfg.JiraDomain,
		Email:      cfg.JiraEmail,
		APIToken:   cfg.JiraAPIToken,
		ProjectKey: cfg.JiraProjectKey,
		Timeout:    30 * time.Second,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to create Jira client: %v", err)
	}
	slackNotifier := slack.NewNotifier(slack.Config{
		BotToken:         cfg.SlackBotToken,
		DefaultChannelID: cfg.SlackDefaultChannelID,
	})

	intRegistry := integrations.NewRegistry()
	intRegistry.Register("jira", jiraClient)
	intRegistry.Register("slack", slackNotifier)
	log.Println("IntegrationRegistry initialized and populated.")

	// 4. Optional storage: knowledge base and encrypted transcripts
	var (
		dbpool      *pgxpool.Pool
		transcripts store.TranscriptStore
		box         *crypto.Box
		knowledge   store.KnowledgeStore
		embedder    services.Embedder
	)
	if cfg.StorageEnabled() {
		if err := postgres.EnsureSchema(setupCtx, cfg.DatabaseURL); err != nil {
			log.Fatalf("FATAL: Failed to apply database schema: %v", err)
		}
		dbpool, err = postgres.NewPool(setupCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("FATAL: Unable to create database connection pool: %v", err)
		}
		defer dbpool.Close()
		log.Println("Database connection pool established and pinged successfully.")

		pgStore := postgres.NewPostgresStore(dbpool)
		box, err = crypto.NewBox(cfg.EncryptionKey)
		if err != nil {
			log.Fatalf("FATAL: Failed to create AES-GCM cipher: %v", err)
		}
		transcripts = pgStore

		if cfg.KnowledgeBaseEnabled() {
			knowledge = pgStore
			embedder = llm.NewEmbedder(llm.EmbedderConfig{
				APIKey:     cfg.EmbeddingAPIKey,
				BaseURL:    cfg.EmbeddingBaseURL,
				Model:      cfg.EmbeddingModel,
				Dimensions: cfg.EmbeddingDimensions,
			})
		}
	} else {
		log.Println("WARN: DATABASE_URL not set. Knowledge base and transcripts are disabled.")
	}

	// 5. Services
	kbService := services.NewKnowledgeService(knowledge, embedder)
	chatDeps := services.ChatDependencies{
		Gateway:        streamClient,
		Router:         router,
		LLM:            llmClient,
		Jira:           jiraClient,
		Notifier:       slackNotifier,
		Knowledge:      kbService,
		Transcripts:    transcripts,
		Box:            box,
		JiraProjectKey: cfg.JiraProjectKey,
		TechChannelID:  cfg.SlackTechChannelID,
		HistoryTurns:   cfg.HistoryTurns,
	}
	chatService := services.NewChatService(chatDeps)
	authService := services.NewAuthService(cfg)
	log.Println("Services initialized.")

	// 6. Handlers and router
	routerDeps := api.RouterDependencies{
		StreamHandler: handlers.NewStreamHandlers(streamClient, chatService),
		ChatHandler:   handlers.NewChatHandlers(chatService),
		AuthHandler:   handlers.NewAuthHandler(authService),
		KBHandler:     handlers.NewKBHandler(kbService),
		OpsHandler:    handlers.NewOpsHandlers(jiraClient, chatService, intRegistry),
		Config:        cfg,
	}
	httpRouter := api.NewRouter(routerDeps)
	log.Println("HTTP router configured.")

	// 7. Configure and Start HTTP Server
	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: httpRouter,
		// Uploads and LLM-backed /api/chat need more than the usual write budget.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting and listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Could not listen on %s: %v\n", cfg.HTTPPort, err)
		}
		log.Println("Server listener routine stopped.")
	}()

	<-stopChan
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: Server graceful shutdown failed: %v", err)
	}
	// Webhook replies run after the ack; let them post before the pool closes.
	if err := chatService.Wait(shutdownCtx); err != nil {
		log.Printf("WARN: Pending chat replies abandoned: %v", err)
	}

	log.Println("Server shutdown complete.")
}
