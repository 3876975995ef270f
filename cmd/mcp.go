package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repoquery/internal/ingest"
	mcpserver "repoquery/internal/mcp"
	"repoquery/internal/vectordb"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing code search and question answering tools for AI agents like Claude Code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		embedder, err := newEmbedder(cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		store := vectordb.NewChromemStore(embedder)
		if err := store.Load(context.Background(), cfg.DataDir); err != nil {
			// Continue with an empty store; search will report it.
			fmt.Fprintf(os.Stderr, "Warning: could not load vector index: %v\n", err)
		}
		provider, err := newProvider(cfg)
		if err != nil {
			return fmt.Errorf("creating LLM provider: %w", err)
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "repoquery MCP server started on stdio (data=%s)\n", cfg.DataDir)

		srv := mcpserver.NewServer(store, provider, ingest.NewCatalog(database), ragOptions(cfg))
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
