package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"repoquery/internal/config"
	"repoquery/internal/db"
	"repoquery/internal/embeddings"
	"repoquery/internal/llm"
	"repoquery/internal/rag"
	"repoquery/internal/vectordb"
)

// defaultRPM throttles completion calls so batch-heavy commands stay
// inside typical provider rate limits.
const defaultRPM = 60

// loadConfig loads and validates the config, providing a friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `repoquery init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newEmbedder creates an embeddings.Embedder from config. Providers
// without a native embedding API fall back to OpenAI embeddings.
func newEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = config.GetPreset(provider).EmbeddingModel
	}

	switch provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, model, os.Getenv("OPENAI_BASE_URL")), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, 768, os.Getenv("OLLAMA_HOST")), nil
	default:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required (used for embeddings when provider is %s)", provider)
		}
		return embeddings.NewOpenAIEmbedder(apiKey, model, os.Getenv("OPENAI_BASE_URL")), nil
	}
}

// newProvider creates the completion provider from config, rate limited
// to stay inside provider quotas.
func newProvider(cfg *config.Config) (llm.Provider, error) {
	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}
	return llm.NewRateLimitedProvider(provider, defaultRPM), nil
}

// openStore creates the vector store and loads the persisted index from
// the data directory. A missing snapshot is fine; the store starts empty.
func openStore(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (vectordb.VectorStore, error) {
	store := vectordb.NewChromemStore(embedder)
	if err := store.Load(ctx, cfg.DataDir); err != nil {
		return nil, fmt.Errorf("loading vector index from %s: %w", cfg.DataDir, err)
	}
	return store, nil
}

// openDatabase opens the SQLite database in the data directory.
func openDatabase(cfg *config.Config) (*db.DB, error) {
	return db.Open(filepath.Join(cfg.DataDir, "repoquery.db"))
}

// ragOptions maps retrieval config onto engine options.
func ragOptions(cfg *config.Config) rag.Options {
	return rag.Options{
		TwoPass:         cfg.Retrieval.Mode != config.ModeSinglePass,
		TopK:            cfg.Retrieval.TopK,
		SubQuestionTopK: cfg.Retrieval.SubQuestionTopK,
		MaxSubQuestions: cfg.Retrieval.MaxSubQuestions,
		ContextBudget:   cfg.Retrieval.ContextBudget,
		MaxPromptSize:   cfg.Retrieval.MaxPromptSize,
	}
}
