// Command kbctl manages the FinStack knowledge base from the command line.
package main

import (
	"context"
	"fmt"
	"os"

	"finstack-backend/internal/config"
	"finstack-backend/internal/knowledge"
	"finstack-backend/internal/llm"
	"finstack-backend/internal/models"
	"finstack-backend/internal/services"
	"finstack-backend/internal/store/postgres"

	"github.com/spf13/cobra"
)

// knowledgeBase is the part of the knowledge service kbctl drives.
type knowledgeBase interface {
	IngestFile(ctx context.Context, content []byte, meta services.DocumentMeta) (*models.IngestResponse, error)
	IngestRecords(ctx context.Context, records []knowledge.Record) (int, error)
	DeleteByFilename(ctx context.Context, filename string) (int64, error)
	Stats(ctx context.Context) (*models.KnowledgeStats, error)
	Search(ctx context.Context, query string, opts services.SearchOptions) ([]models.ScoredChunk, error)
}

// opener connects to the knowledge base; the returned func releases it.
type opener func(ctx context.Context) (knowledgeBase, func(), error)

func main() {
	if err := newRootCmd(openKnowledgeBase).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kbctl",
		Short:         "Manage the FinStack knowledge base",
		Long:          `kbctl seeds, ingests, searches and prunes the vector knowledge base used to ground support answers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newSeedCmd(open),
		newIngestCmd(open),
		newDeleteCmd(open),
		newStatsCmd(open),
		newSearchCmd(open),
		newHashPasswordCmd(),
	)
	return rootCmd
}

func openKnowledgeBase(ctx context.Context) (knowledgeBase, func(), error) {
	cfg, err := config.LoadKnowledgeConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.EnsureSchema(ctx, cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("applying schema: %w", err)
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	embedder := llm.NewEmbedder(llm.EmbedderConfig{
		APIKey:     cfg.EmbeddingAPIKey,
		BaseURL:    cfg.EmbeddingBaseURL,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	})
	svc := services.NewKnowledgeService(postgres.NewPostgresStore(pool), embedder)
	return svc, pool.Close, nil
}
