package store

import (
	"context"
	"errors"

	"finstack-backend/internal/models"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// KnowledgeStore persists embedded knowledge base chunks.
type KnowledgeStore interface {
	UpsertChunks(ctx context.Context, chunks []models.KnowledgeChunk) error
	SearchChunks(ctx context.Context, params models.ChunkSearchParams) ([]models.ScoredChunk, error)
	DeleteChunksByFilename(ctx context.Context, filename string) (int64, error)
	KnowledgeStats(ctx context.Context) (*models.KnowledgeStats, error)
}

// TranscriptStore persists encrypted chat exchanges.
type TranscriptStore interface {
	CreateExchange(ctx context.Context, exchange *models.ChatExchange) error
	// ListExchanges returns the newest exchanges first.
	ListExchanges(ctx context.Context, userID string, limit int) ([]models.ChatExchange, error)
	DeleteExchanges(ctx context.Context, userID string) (int64, error)
}

// Store defines the interface for database operations.
// This allows for mocking in tests and potential DB backend switching.
type Store interface {
	KnowledgeStore
	TranscriptStore
	Ping(ctx context.Context) error
}
