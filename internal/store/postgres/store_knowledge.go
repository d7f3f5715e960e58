package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"

	"finstack-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// --- Knowledge Chunk Methods ---

// UpsertChunks inserts or replaces chunks in a single batch.
func (s *PostgresStore) UpsertChunks(ctx context.Context, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	log.Printf("[PostgresStore] UpsertChunks called with %d chunks", len(chunks))
	query := `
        INSERT INTO kb_chunks (id, content, doc_type, filename, confidential, access_level, chunk_index, total_chunks, metadata, embedding)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO UPDATE SET
            content = EXCLUDED.content,
            doc_type = EXCLUDED.doc_type,
            filename = EXCLUDED.filename,
            confidential = EXCLUDED.confidential,
            access_level = EXCLUDED.access_level,
            chunk_index = EXCLUDED.chunk_index,
            total_chunks = EXCLUDED.total_chunks,
            metadata = EXCLUDED.metadata,
            embedding = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		metadata := c.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		batch.Queue(query,
			c.ID,
			c.Content,
			string(c.DocType),
			c.Filename,
			c.Confidential,
			c.AccessLevel,
			c.ChunkIndex,
			c.TotalChunks,
			metadata,
			pgvector.NewVector(c.Embedding),
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()
	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				log.Printf("ERROR [PostgresStore] UpsertChunks: PostgreSQL error for chunk %s: Code=%s, Message=%s", chunks[i].ID, pgErr.Code, pgErr.Message)
			} else {
				log.Printf("ERROR [PostgresStore] UpsertChunks: Failed for chunk %s: %v", chunks[i].ID, err)
			}
			return fmt.Errorf("database error upserting chunk %s: %w", chunks[i].ID, err)
		}
	}
	return nil
}

// SearchChunks returns the nearest chunks by cosine similarity, best first.
func (s *PostgresStore) SearchChunks(ctx context.Context, params models.ChunkSearchParams) ([]models.ScoredChunk, error) {
	query := `
        SELECT id, content, doc_type, filename, confidential, access_level, chunk_index, total_chunks, metadata, created_at,
               1 - (embedding <=> $1) AS score
        FROM kb_chunks
        WHERE ($2::text = '' OR doc_type = $2::text)
          AND ($3::boolean OR NOT confidential)
        ORDER BY embedding <=> $1
        LIMIT $4`

	rows, err := s.db.Query(ctx, query,
		pgvector.NewVector(params.Embedding),
		string(params.DocType),
		params.IncludeConfidential,
		params.TopK,
	)
	if err != nil {
		log.Printf("ERROR [PostgresStore] SearchChunks: Query failed: %v", err)
		return nil, fmt.Errorf("database error searching chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.ScoredChunk
	for rows.Next() {
		var h models.ScoredChunk
		var docType string
		if err := rows.Scan(
			&h.ID,
			&h.Content,
			&docType,
			&h.Filename,
			&h.Confidential,
			&h.AccessLevel,
			&h.ChunkIndex,
			&h.TotalChunks,
			&h.Metadata,
			&h.CreatedAt,
			&h.Score,
		); err != nil {
			log.Printf("ERROR [PostgresStore] SearchChunks: Failed to scan row: %v", err)
			return nil, fmt.Errorf("database error scanning chunk: %w", err)
		}
		h.DocType = models.DocType(docType)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating chunks: %w", err)
	}
	return hits, nil
}

// DeleteChunksByFilename removes every chunk ingested from the named file.
func (s *PostgresStore) DeleteChunksByFilename(ctx context.Context, filename string) (int64, error) {
	log.Printf("[PostgresStore] DeleteChunksByFilename called for %q", filename)
	tag, err := s.db.Exec(ctx, `DELETE FROM kb_chunks WHERE filename = $1`, filename)
	if err != nil {
		log.Printf("ERROR [PostgresStore] DeleteChunksByFilename: Failed for %q: %v", filename, err)
		return 0, fmt.Errorf("database error deleting chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) KnowledgeStats(ctx context.Context) (*models.KnowledgeStats, error) {
	stats := &models.KnowledgeStats{ByDocType: map[models.DocType]int{}}

	rows, err := s.db.Query(ctx, `
        SELECT doc_type, COUNT(*), COUNT(*) FILTER (WHERE confidential)
        FROM kb_chunks
        GROUP BY doc_type`)
	if err != nil {
		return nil, fmt.Errorf("database error reading stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var docType string
		var total, confidential int
		if err := rows.Scan(&docType, &total, &confidential); err != nil {
			return nil, fmt.Errorf("database error scanning stats: %w", err)
		}
		stats.ByDocType[models.DocType(docType)] = total
		stats.TotalChunks += total
		stats.Confidential += confidential
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating stats: %w", err)
	}

	err = s.db.QueryRow(ctx, `SELECT COUNT(DISTINCT filename) FROM kb_chunks WHERE filename <> ''`).Scan(&stats.Documents)
	if err != nil {
		return nil, fmt.Errorf("database error counting documents: %w", err)
	}
	return stats, nil
}
