package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"repoquery/internal/ingest"
	"repoquery/internal/llm"
	"repoquery/internal/rag"
	"repoquery/internal/session"
	"repoquery/internal/vectordb"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)

	// TwoPass is the default retrieval mode; requests may override it.
	TwoPass      bool
	HistoryTurns int
	RagOptions   rag.Options
}

// Server exposes ingestion and question answering over HTTP.
type Server struct {
	cfg        Config
	catalog    *ingest.Catalog
	jobs       *ingest.JobManager
	sessions   *session.Store
	store      vectordb.VectorStore
	provider   llm.Provider
	router     chi.Router
	httpServer *http.Server
}

func New(cfg Config, catalog *ingest.Catalog, jobs *ingest.JobManager, sessions *session.Store, store vectordb.VectorStore, provider llm.Provider) *Server {
	s := &Server{
		cfg:      cfg,
		catalog:  catalog,
		jobs:     jobs,
		sessions: sessions,
		store:    store,
		provider: provider,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/repos", s.handleIngestRepo)
		r.Get("/repos", s.handleListRepos)
		r.Delete("/repos/{repoID}", s.handleDeleteRepo)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Post("/query", s.handleQuery)
	})

	r.Get("/ws/chat", s.handleChatSocket)

	return r
}

// Router exposes the router for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("repoquery server listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the listener and waits for background ingestions.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.jobs.Wait()
	return nil
}

// engine builds a pipeline for one request, honouring a per-request
// mode override.
func (s *Server) engine(twoPass bool) *rag.Engine {
	opts := s.cfg.RagOptions
	opts.TwoPass = twoPass
	return rag.NewEngine(s.store, s.provider, opts)
}
