package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"finstack-backend/internal/fileproc"
	"finstack-backend/internal/knowledge"
	"finstack-backend/internal/models"
	"finstack-backend/internal/store"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Custom errors for the knowledge service
var (
	ErrKnowledgeBaseUnavailable = errors.New("knowledge base not configured")
	ErrKBValidation             = errors.New("knowledge base validation failed")
	ErrKBNotFound               = errors.New("document not found in knowledge base")
)

const (
	// Messages handed to the LLM in place of retrieved context.
	NoKnowledgeMessage          = "No relevant information found in knowledge base."
	KnowledgeUnavailableMessage = "Knowledge base not available."

	knowledgeContextHeader = "Here is relevant information from the knowledge base:\n"

	DefaultSearchTopK    = 5
	MaxSearchTopK        = 50
	DefaultContextChunks = 3
	MinContextRelevance  = 0.3

	upsertBatchSize = 100
)

// Embedder turns texts into vectors, one per input and in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchOptions narrows a knowledge base search.
type SearchOptions struct {
	TopK                int
	DocType             models.DocType
	IncludeConfidential bool
}

// DocumentMeta describes an uploaded document.
type DocumentMeta struct {
	Filename     string
	DocType      models.DocType
	Confidential bool
	AccessLevel  string
	Extra        map[string]any
}

type KnowledgeService struct {
	store    store.KnowledgeStore
	embedder Embedder
}

// NewKnowledgeService creates a KnowledgeService. With a nil store or
// embedder the service runs disabled.
func NewKnowledgeService(s store.KnowledgeStore, e Embedder) *KnowledgeService {
	if s == nil || e == nil {
		log.Println("WARN [KnowledgeService] No database or embedder configured, knowledge base disabled.")
		return &KnowledgeService{}
	}
	return &KnowledgeService{store: s, embedder: e}
}

func (s *KnowledgeService) Enabled() bool {
	return s.store != nil && s.embedder != nil
}

// Search embeds query and returns the closest chunks, best first.
func (s *KnowledgeService) Search(ctx context.Context, query string, opts SearchOptions) ([]models.ScoredChunk, error) {
	if !s.Enabled() {
		return nil, ErrKnowledgeBaseUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrKBValidation)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultSearchTopK
	}
	topK = min(topK, MaxSearchTopK)

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		log.Printf("ERROR [KnowledgeService] Search: Failed to embed query: %v", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return s.store.SearchChunks(ctx, models.ChunkSearchParams{
		Embedding:           vectors[0],
		TopK:                topK,
		DocType:             opts.DocType,
		IncludeConfidential: opts.IncludeConfidential,
	})
}

// ContextForLLM renders up to maxResults non-confidential chunks as grounding
// text. Only chunk content is included, never metadata.
func (s *KnowledgeService) ContextForLLM(ctx context.Context, query string, maxResults int) string {
	if !s.Enabled() {
		return KnowledgeUnavailableMessage
	}
	if maxResults <= 0 {
		maxResults = DefaultContextChunks
	}

	hits, err := s.Search(ctx, query, SearchOptions{TopK: maxResults})
	if err != nil {
		log.Printf("WARN [KnowledgeService] ContextForLLM: search failed: %v", err)
		return KnowledgeUnavailableMessage
	}
	if len(hits) == 0 || hits[0].Score < MinContextRelevance {
		return NoKnowledgeMessage
	}

	var b strings.Builder
	b.WriteString(knowledgeContextHeader)
	for i, h := range hits {
		if h.Score < MinContextRelevance {
			break
		}
		fmt.Fprintf(&b, "\n[Source %d] (Relevance: %.2f)\n%s\n", i+1, h.Score, h.Content)
	}
	return b.String()
}

// IngestFile extracts text from an uploaded file and ingests it.
func (s *KnowledgeService) IngestFile(ctx context.Context, content []byte, meta DocumentMeta) (*models.IngestResponse, error) {
	if !s.Enabled() {
		return nil, ErrKnowledgeBaseUnavailable
	}
	extraction, err := fileproc.Extract(content, meta.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKBValidation, err)
	}

	resp, err := s.IngestDocument(ctx, extraction.Text, meta)
	if err != nil {
		return nil, err
	}
	resp.FileType = extraction.FileType
	resp.CharCount = extraction.CharCount
	return resp, nil
}

// IngestDocument chunks, embeds and stores a document's text.
func (s *KnowledgeService) IngestDocument(ctx context.Context, text string, meta DocumentMeta) (*models.IngestResponse, error) {
	if !s.Enabled() {
		return nil, ErrKnowledgeBaseUnavailable
	}
	if meta.Filename == "" {
		return nil, fmt.Errorf("%w: filename cannot be empty", ErrKBValidation)
	}
	if meta.DocType == "" {
		meta.DocType = models.DocTypeDocument
	}
	if meta.AccessLevel == "" {
		meta.AccessLevel = models.AccessAllEmployees
	}

	texts := knowledge.ChunkText(text, knowledge.DefaultChunkSize, knowledge.DefaultChunkOverlap)
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no text could be extracted from %s", ErrKBValidation, meta.Filename)
	}

	prefix := fmt.Sprintf("%s_%s", meta.Filename, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	chunks := make([]models.KnowledgeChunk, len(texts))
	for i, t := range texts {
		metadata := map[string]any{
			"chunk_index":  i,
			"total_chunks": len(texts),
		}
		for k, v := range meta.Extra {
			metadata[k] = v
		}
		chunks[i] = models.KnowledgeChunk{
			ID:           fmt.Sprintf("%s_%d", prefix, i),
			Content:      t,
			DocType:      meta.DocType,
			Filename:     meta.Filename,
			Confidential: meta.Confidential,
			AccessLevel:  meta.AccessLevel,
			ChunkIndex:   i,
			TotalChunks:  len(texts),
			Metadata:     metadata,
		}
	}

	upserted, err := s.embedAndStore(ctx, chunks)
	if err != nil {
		log.Printf("ERROR [KnowledgeService] IngestDocument: %s failed after %d chunks: %v", meta.Filename, upserted, err)
		return nil, err
	}

	log.Printf("[KnowledgeService] IngestDocument: %s -> %d chunks", meta.Filename, len(chunks))
	return &models.IngestResponse{
		Status:          "success",
		ChunksCreated:   len(chunks),
		VectorsUpserted: upserted,
		Filename:        meta.Filename,
	}, nil
}

// IngestRecords embeds formatted seed records, one chunk per record.
func (s *KnowledgeService) IngestRecords(ctx context.Context, records []knowledge.Record) (int, error) {
	if !s.Enabled() {
		return 0, ErrKnowledgeBaseUnavailable
	}
	chunks := lo.Map(records, func(r knowledge.Record, _ int) models.KnowledgeChunk {
		return models.KnowledgeChunk{
			ID:           r.ID,
			Content:      r.Content,
			DocType:      r.DocType,
			Confidential: r.Confidential,
			AccessLevel:  r.AccessLevel,
			TotalChunks:  1,
			Metadata:     r.Metadata,
		}
	})
	return s.embedAndStore(ctx, chunks)
}

// embedAndStore embeds and upserts chunks in batches, returning how many were stored.
func (s *KnowledgeService) embedAndStore(ctx context.Context, chunks []models.KnowledgeChunk) (int, error) {
	stored := 0
	for _, batch := range lo.Chunk(chunks, upsertBatchSize) {
		texts := lo.Map(batch, func(c models.KnowledgeChunk, _ int) string { return c.Content })
		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return stored, fmt.Errorf("failed to embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return stored, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
		if err := s.store.UpsertChunks(ctx, batch); err != nil {
			return stored, fmt.Errorf("failed to store batch: %w", err)
		}
		stored += len(batch)
	}
	return stored, nil
}

// DeleteByFilename removes every chunk of an uploaded document.
func (s *KnowledgeService) DeleteByFilename(ctx context.Context, filename string) (int64, error) {
	if !s.Enabled() {
		return 0, ErrKnowledgeBaseUnavailable
	}
	if strings.TrimSpace(filename) == "" {
		return 0, fmt.Errorf("%w: filename cannot be empty", ErrKBValidation)
	}
	n, err := s.store.DeleteChunksByFilename(ctx, filename)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrKBNotFound, filename)
	}
	log.Printf("[KnowledgeService] DeleteByFilename: removed %d chunks of %s", n, filename)
	return n, nil
}

func (s *KnowledgeService) Stats(ctx context.Context) (*models.KnowledgeStats, error) {
	if !s.Enabled() {
		return nil, ErrKnowledgeBaseUnavailable
	}
	return s.store.KnowledgeStats(ctx)
}
