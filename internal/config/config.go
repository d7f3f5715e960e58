package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrInvalidConfig is returned when the environment describes an unusable configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration values loaded from environment variables.
type Config struct {
	HTTPPort           string   `envconfig:"HTTP_PORT" default:"8000"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`

	// Hosted chat (Stream)
	StreamAPIKey    string `envconfig:"STREAM_API_KEY" required:"true"`
	StreamAPISecret string `envconfig:"STREAM_API_SECRET" required:"true"`
	BotUserID       string `envconfig:"BOT_USER_ID" default:"FinStackAI"`
	BotName         string `envconfig:"BOT_NAME" default:"FinStack AI"`

	// LLM (Groq, OpenAI-compatible API)
	GroqAPIKey  string        `envconfig:"GROQ_API_KEY" required:"true"`
	GroqBaseURL string        `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	GroqModel   string        `envconfig:"GROQ_MODEL" default:"llama-3.1-8b-instant"`
	LLMTimeout  time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`

	// Jira
	JiraDomain          string   `envconfig:"JIRA_DOMAIN"`
	JiraEmail           string   `envconfig:"JIRA_EMAIL"`
	JiraAPIToken        string   `envconfig:"JIRA_API_TOKEN"`
	JiraProjectKey      string   `envconfig:"JIRA_PROJECT_KEY"`
	JiraTriggerKeywords []string `envconfig:"JIRA_TRIGGER_KEYWORDS" default:"jira,ticket,tickets,bug,bugs"`

	// Slack
	SlackBotToken         string `envconfig:"SLACK_BOT_TOKEN"`
	SlackDefaultChannelID string `envconfig:"SLACK_DEFAULT_CHANNEL_ID"`
	SlackTechChannelID    string `envconfig:"SLACK_TECH_CHANNEL_ID"`

	// Storage for transcripts and the knowledge base
	DatabaseURL             string `envconfig:"DATABASE_URL"`
	TranscriptEncryptionKey string `envconfig:"TRANSCRIPT_ENCRYPTION_KEY"`
	EmbeddingAPIKey         string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL        string `envconfig:"EMBEDDING_BASE_URL" default:"https://api.openai.com/v1"`
	EmbeddingModel          string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions     int    `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`
	HistoryTurns            int    `envconfig:"HISTORY_TURNS" default:"5"`

	// Admin API
	JWTSecret          string `envconfig:"JWT_SECRET"`
	JWTExpirationHours int    `envconfig:"JWT_EXPIRATION_HOURS" default:"24"`
	AdminUsername      string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPasswordHash  string `envconfig:"ADMIN_PASSWORD_HASH"`

	// EncryptionKey is decoded from TranscriptEncryptionKey by Validate.
	EncryptionKey []byte `ignored:"true"`
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Could not load .env file. Using environment variables only.", err)
	}
	return FromEnv()
}

// FromEnv decodes and validates the current process environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Loaded config: Port=%s, StreamKey=%s, GroqModel=%s, Jira=%t, Slack=%t, Storage=%t, Admin=%t",
		cfg.HTTPPort, mask(cfg.StreamAPIKey), cfg.GroqModel, cfg.JiraEnabled(), cfg.SlackEnabled(), cfg.StorageEnabled(), cfg.AdminEnabled())
	for _, s := range cfg.IntegrationStatus() {
		log.Printf("[Config] %s", s)
	}
	return &cfg, nil
}

// Validate checks cross-field consistency and decodes the encryption key.
func (c *Config) Validate() error {
	// envconfig treats an empty but set variable as present
	for name, v := range map[string]string{"STREAM_API_KEY": c.StreamAPIKey, "STREAM_API_SECRET": c.StreamAPISecret, "GROQ_API_KEY": c.GroqAPIKey} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s environment variable is not set", ErrInvalidConfig, name)
		}
	}
	if c.StorageEnabled() {
		if c.TranscriptEncryptionKey == "" {
			return fmt.Errorf("%w: TRANSCRIPT_ENCRYPTION_KEY is required when DATABASE_URL is set", ErrInvalidConfig)
		}
		key, err := hex.DecodeString(c.TranscriptEncryptionKey)
		if err != nil {
			return fmt.Errorf("%w: failed to decode TRANSCRIPT_ENCRYPTION_KEY from hex: %v", ErrInvalidConfig, err)
		}
		if len(key) != 32 {
			return fmt.Errorf("%w: TRANSCRIPT_ENCRYPTION_KEY must be 32 bytes (64 hex characters) long, got %d bytes", ErrInvalidConfig, len(key))
		}
		c.EncryptionKey = key
	}
	if c.AdminPasswordHash != "" && c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required when ADMIN_PASSWORD_HASH is set", ErrInvalidConfig)
	}
	if c.JWTExpirationHours <= 0 {
		log.Printf("Warning: Invalid JWT_EXPIRATION_HOURS '%d', using default 24h.", c.JWTExpirationHours)
		c.JWTExpirationHours = 24
	}
	if c.HistoryTurns < 0 {
		c.HistoryTurns = 0
	}
	c.JiraDomain = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(c.JiraDomain, "https://"), "http://"), "/")
	return nil
}

// TokenExpiration is the lifetime of admin access tokens.
func (c *Config) TokenExpiration() time.Duration {
	return time.Duration(c.JWTExpirationHours) * time.Hour
}

func (c *Config) JiraEnabled() bool {
	return c.JiraDomain != "" && c.JiraEmail != "" && c.JiraAPIToken != ""
}

func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

func (c *Config) StorageEnabled() bool {
	return c.DatabaseURL != ""
}

// KnowledgeBaseEnabled reports whether vector search can run (storage plus an embedding key).
func (c *Config) KnowledgeBaseEnabled() bool {
	return c.StorageEnabled() && c.EmbeddingAPIKey != ""
}

func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}

// IntegrationStatus describes every optional integration and, when disabled, what is missing.
func (c *Config) IntegrationStatus() []string {
	type group struct {
		name string
		vars map[string]string
	}
	groups := []group{
		{"Jira", map[string]string{"JIRA_DOMAIN": c.JiraDomain, "JIRA_EMAIL": c.JiraEmail, "JIRA_API_TOKEN": c.JiraAPIToken}},
		{"Slack", map[string]string{"SLACK_BOT_TOKEN": c.SlackBotToken}},
		{"Storage", map[string]string{"DATABASE_URL": c.DatabaseURL}},
		{"KnowledgeBase", map[string]string{"DATABASE_URL": c.DatabaseURL, "EMBEDDING_API_KEY": c.EmbeddingAPIKey}},
		{"Admin", map[string]string{"JWT_SECRET": c.JWTSecret, "ADMIN_PASSWORD_HASH": c.AdminPasswordHash}},
	}

	out := make([]string, 0, len(groups))
	for _, g := range groups {
		var missing []string
		for _, name := range slices.Sorted(maps.Keys(g.vars)) {
			if g.vars[name] == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) == 0 {
			out = append(out, g.name+": enabled")
		} else {
			out = append(out, fmt.Sprintf("%s: disabled (missing %s)", g.name, strings.Join(missing, ", ")))
		}
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return s[:4] + "***"
}

// KnowledgeConfig is the subset of Config the offline knowledge base tools need.
type KnowledgeConfig struct {
	DatabaseURL         string `envconfig:"DATABASE_URL" required:"true"`
	EmbeddingAPIKey     string `envconfig:"EMBEDDING_API_KEY" required:"true"`
	EmbeddingBaseURL    string `envconfig:"EMBEDDING_BASE_URL" default:"https://api.openai.com/v1"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"384"`
}

// LoadKnowledgeConfig loads KnowledgeConfig without requiring the chat credentials.
func LoadKnowledgeConfig() (*KnowledgeConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Could not load .env file. Using environment variables only.", err)
	}
	var cfg KnowledgeConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" || strings.TrimSpace(cfg.EmbeddingAPIKey) == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL and EMBEDDING_API_KEY must be set", ErrInvalidConfig)
	}
	return &cfg, nil
}
