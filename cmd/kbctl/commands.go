package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"finstack-backend/internal/auth"
	"finstack-backend/internal/knowledge"
	"finstack-backend/internal/models"
	"finstack-backend/internal/services"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const previewLen = 120

// withKnowledgeBase opens the knowledge base for the duration of fn.
func withKnowledgeBase(cmd *cobra.Command, open opener, fn func(ctx context.Context, kb knowledgeBase) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	kb, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, kb)
}

func newSeedCmd(open opener) *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Embed the JSON seed data (employees, customers, financials, projects, knowledge)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := knowledge.LoadSeedDir(dataDir)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("no seed records found in %s", dataDir)
			}
			return withKnowledgeBase(cmd, open, func(ctx context.Context, kb knowledgeBase) error {
				n, err := kb.IngestRecords(ctx, records)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d records into the knowledge base.\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory holding the seed JSON files")
	return cmd
}

func newIngestCmd(open opener) *cobra.Command {
	var (
		docType      string
		confidential bool
		accessLevel  string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Extract, chunk and embed a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDocType(docType)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			meta := services.DocumentMeta{
				Filename:     filepath.Base(args[0]),
				DocType:      dt,
				Confidential: confidential,
				AccessLevel:  accessLevel,
			}
			return withKnowledgeBase(cmd, open, func(ctx context.Context, kb knowledgeBase) error {
				resp, err := kb.IngestFile(ctx, content, meta)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s (%s, %d chars): %d chunks, %d vectors.\n",
					resp.Filename, resp.FileType, resp.CharCount, resp.ChunksCreated, resp.VectorsUpserted)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&docType, "doc-type", string(models.DocTypeDocument), "document type tag")
	cmd.Flags().BoolVar(&confidential, "confidential", false, "hide the document from chat answers")
	cmd.Flags().StringVar(&accessLevel, "access-level", models.AccessAllEmployees, "access level tag")
	return cmd
}

func newDeleteCmd(open opener) *cobra.Command {
	var (
		filename string
		yes      bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every chunk of an ingested document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Delete all chunks of %q?", filename))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}
			return withKnowledgeBase(cmd, open, func(ctx context.Context, kb knowledgeBase) error {
				n, err := kb.DeleteByFilename(ctx, filename)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chunks of %s.\n", n, filename)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filename, "filename", "", "name of the ingested file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("filename")
	return cmd
}

func newStatsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show chunk counts by document type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKnowledgeBase(cmd, open, func(ctx context.Context, kb knowledgeBase) error {
				stats, err := kb.Stats(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "Total chunks\t%d\n", stats.TotalChunks)
				fmt.Fprintf(w, "Confidential\t%d\n", stats.Confidential)
				fmt.Fprintf(w, "Documents\t%d\n", stats.Documents)
				for _, dt := range slices.Sorted(maps.Keys(stats.ByDocType)) {
					fmt.Fprintf(w, "  %s\t%d\n", dt, stats.ByDocType[dt])
				}
				return w.Flush()
			})
		},
	}
}

func newSearchCmd(open opener) *cobra.Command {
	var (
		topK    int
		docType string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a similarity search, confidential chunks included",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dt models.DocType
			if docType != "" {
				var err error
				if dt, err = parseDocType(docType); err != nil {
					return err
				}
			}
			query := strings.Join(args, " ")
			return withKnowledgeBase(cmd, open, func(ctx context.Context, kb knowledgeBase) error {
				hits, err := kb.Search(ctx, query, services.SearchOptions{
					TopK:                topK,
					DocType:             dt,
					IncludeConfidential: true,
				})
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No results.")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SCORE\tTYPE\tID\tCONTENT")
				for _, h := range hits {
					fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", h.Score, h.DocType, h.ID, preview(h.Content))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", services.DefaultSearchTopK, "number of results")
	cmd.Flags().StringVar(&docType, "doc-type", "", "only search this document type")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > previewLen {
		return string(r[:previewLen]) + "..."
	}
	return s
}

func parseDocType(s string) (models.DocType, error) {
	dt := models.DocType(s)
	if !dt.Valid() {
		names := lo.Map(models.DocTypes, func(d models.DocType, _ int) string { return string(d) })
		return "", fmt.Errorf("unknown doc type %q (want one of: %s)", s, strings.Join(names, ", "))
	}
	return dt, nil
}
