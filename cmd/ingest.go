package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"repoquery/internal/chunker"
	"repoquery/internal/ingest"
	"repoquery/internal/progress"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Index a repository for semantic search",
	Long: `Walks the source tree, chunks every file along its syntactic
structure, embeds the chunks, and stores them in the vector index.
Re-running over a changed tree replaces the affected chunks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("repo", "", "repository ID (default: directory name)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rootDir := "."
	if len(args) == 1 {
		rootDir = args[0]
	}
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	repoID, _ := cmd.Flags().GetString("repo")
	if repoID == "" {
		repoID = filepath.Base(rootDir)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	store, err := openStore(ctx, cfg, embedder)
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	catalog := ingest.NewCatalog(database)
	if err := catalog.Register(ctx, repoID, rootDir); err != nil {
		return err
	}

	pipeline := ingest.NewPipeline(store, chunker.NewRegistry(), ingest.Config{
		Include:        cfg.Include,
		Exclude:        cfg.Exclude,
		MaxFileSize:    cfg.MaxFileSize,
		MaxConcurrency: cfg.MaxConcurrency,
		MaxChunkSize:   cfg.Chunking.MaxChunkSize,
	})

	fmt.Printf("Indexing %s as %q (embeddings: %s)\n", rootDir, repoID, embedder.Name())
	result, err := pipeline.Run(ctx, repoID, rootDir, progress.NewReporter())
	if err != nil {
		return err
	}

	if err := catalog.RecordIngestion(ctx, result); err != nil {
		return err
	}
	if err := store.Persist(ctx, cfg.DataDir); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}

	fmt.Printf("Indexed %d/%d files, %d chunks\n",
		result.FilesIndexed, result.FilesTotal, result.ChunkCount)
	if len(result.FileErrors) > 0 {
		fmt.Fprintf(os.Stderr, "%d file(s) had problems:\n", len(result.FileErrors))
		for _, fe := range result.FileErrors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", fe.Path, fe.Err)
		}
	}
	return nil
}
