package config

// ModelPreset describes the default models for a provider.
type ModelPreset struct {
	Model          string
	EmbeddingModel string
}

// modelPresets maps each provider to its default model choices. Anthropic
// has no embedding API, so its preset pairs with OpenAI embeddings.
var modelPresets = map[ProviderType]ModelPreset{
	ProviderOpenAI:    {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-small"},
	ProviderAnthropic: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-small"},
	ProviderOllama:    {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
}

// DefaultExcludes are glob patterns excluded from ingestion by default.
var DefaultExcludes = []string{
	"vendor/**",
	"node_modules/**",
	".git/**",
	"dist/**",
	"build/**",
	"*.min.js",
	"*.min.css",
	"*.lock",
	"go.sum",
	"package-lock.json",
	"yarn.lock",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		DataDir:           ".repoquery",
		Include:           []string{"**"},
		Exclude:           DefaultExcludes,
		MaxFileSize:       512 * 1024,
		MaxConcurrency:    5,
		Chunking: ChunkingConfig{
			MaxChunkSize: 6000,
		},
		Retrieval: RetrievalConfig{
			Mode:            ModeTwoPass,
			TopK:            5,
			SubQuestionTopK: 3,
			MaxSubQuestions: 4,
			ContextBudget:   24000,
			MaxPromptSize:   60000,
			HistoryTurns:    6,
		},
		Session: SessionConfig{
			TTLMinutes: 120,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// GetPreset returns the default models for the given provider.
// Unknown providers fall back to the OpenAI preset.
func GetPreset(provider ProviderType) ModelPreset {
	if preset, ok := modelPresets[provider]; ok {
		return preset
	}
	return modelPresets[ProviderOpenAI]
}
