package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"repoquery/internal/chunker"
	"repoquery/internal/config"
	"repoquery/internal/ingest"
	"repoquery/internal/server"
	"repoquery/internal/session"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the repoquery server with a REST API for ingestion and
querying plus a websocket chat endpoint. Ingestions run as background
jobs that can be polled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		embedder, err := newEmbedder(cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		store, err := openStore(context.Background(), cfg, embedder)
		if err != nil {
			return err
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

		catalog := ingest.NewCatalog(database)
		pipeline := ingest.NewPipeline(store, chunker.NewRegistry(), ingest.Config{
			Include:        cfg.Include,
			Exclude:        cfg.Exclude,
			MaxFileSize:    cfg.MaxFileSize,
			MaxConcurrency: cfg.MaxConcurrency,
			MaxChunkSize:   cfg.Chunking.MaxChunkSize,
		})
		jobs := ingest.NewJobManager(database, pipeline, catalog, store, cfg.DataDir)
		sessions := session.NewStore(database)

		srv := server.New(server.Config{
			Port:         cfg.Server.Port,
			AllowAll:     cfg.Server.AllowAll,
			TwoPass:      cfg.Retrieval.Mode != config.ModeSinglePass,
			HistoryTurns: cfg.Retrieval.HistoryTurns,
			RagOptions:   ragOptions(cfg),
		}, catalog, jobs, sessions, store, provider)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Idle sessions are pruned on a fixed cadence so history
		// storage does not grow without bound.
		if cfg.Session.TTLMinutes > 0 {
			ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute
			go func() {
				ticker := time.NewTicker(ttl / 4)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if n, err := sessions.Prune(ctx, ttl); err != nil {
							fmt.Fprintf(os.Stderr, "Warning: session prune failed: %v\n", err)
						} else if n > 0 && verbose {
							fmt.Fprintf(os.Stderr, "Pruned %d idle session(s)\n", n)
						}
					}
				}
			}()
		}

		go func() {
			<-ctx.Done()
			fmt.Fprintln(os.Stderr, "\nShutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		fmt.Fprintf(os.Stderr, "repoquery server v%s starting on port %d\n", Version, cfg.Server.Port)
		fmt.Fprintf(os.Stderr, "  Data dir: %s\n", cfg.DataDir)
		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
