package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"repoquery/internal/ingest"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage indexed repositories",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		repos, err := ingest.NewCatalog(database).List(ctx)
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Println("No repositories indexed. Run `repoquery ingest` to index one.")
			return nil
		}

		for _, r := range repos {
			fmt.Printf("%s\n", r.ID)
			fmt.Printf("  Root: %s\n", r.RootDir)
			fmt.Printf("  Files: %d, Chunks: %d\n", r.FileCount, r.ChunkCount)
			if r.LastIngestedAt != nil {
				fmt.Printf("  Last ingested: %s\n", r.LastIngestedAt.Format("2006-01-02 15:04:05"))
			}
		}
		return nil
	},
}

var reposDeleteCmd = &cobra.Command{
	Use:   "delete [repo-id]",
	Short: "Remove a repository's index and catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		repoID := args[0]

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

		if err := store.DeleteRepository(ctx, repoID); err != nil {
			return err
		}
		if err := store.Persist(ctx, cfg.DataDir); err != nil {
			return fmt.Errorf("persisting index: %w", err)
		}
		if err := ingest.NewCatalog(database).Delete(ctx, repoID); err != nil {
			return err
		}

		fmt.Printf("Deleted repository %q\n", repoID)
		return nil
	},
}

func init() {
	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposDeleteCmd)
	rootCmd.AddCommand(reposCmd)
}
