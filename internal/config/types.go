package config

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
)

// RetrievalMode selects the retrieval strategy for a query.
type RetrievalMode string

const (
	ModeSinglePass RetrievalMode = "single-pass"
	ModeTwoPass    RetrievalMode = "two-pass"
)

// Config is the top-level repoquery configuration, corresponding to .repoquery.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	DataDir           string       `yaml:"data_dir" koanf:"data_dir"`
	Include           []string     `yaml:"include" koanf:"include"`
	Exclude           []string     `yaml:"exclude" koanf:"exclude"`
	MaxFileSize       int64        `yaml:"max_file_size" koanf:"max_file_size"`
	MaxConcurrency    int          `yaml:"max_concurrency" koanf:"max_concurrency"`

	Chunking  ChunkingConfig  `yaml:"chunking" koanf:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval" koanf:"retrieval"`
	Session   SessionConfig   `yaml:"session" koanf:"session"`
	Server    ServerConfig    `yaml:"server" koanf:"server"`
}

// ChunkingConfig controls how source files are cut into retrieval chunks.
type ChunkingConfig struct {
	// MaxChunkSize is the soft maximum chunk size in characters
	// (roughly 4 characters per token).
	MaxChunkSize int `yaml:"max_chunk_size" koanf:"max_chunk_size"`
}

// RetrievalConfig controls the retrieval pipeline.
type RetrievalConfig struct {
	Mode            RetrievalMode `yaml:"mode" koanf:"mode"`
	TopK            int           `yaml:"top_k" koanf:"top_k"`
	SubQuestionTopK int           `yaml:"subquestion_top_k" koanf:"subquestion_top_k"`
	MaxSubQuestions int           `yaml:"max_subquestions" koanf:"max_subquestions"`
	// ContextBudget is the total character budget for the assembled context.
	ContextBudget int `yaml:"context_budget" koanf:"context_budget"`
	// MaxPromptSize is the character budget for the whole synthesis prompt.
	MaxPromptSize int `yaml:"max_prompt_size" koanf:"max_prompt_size"`
	// HistoryTurns is the number of recent conversation turns included
	// in the synthesis prompt.
	HistoryTurns int `yaml:"history_turns" koanf:"history_turns"`
}

// SessionConfig controls conversation session storage.
type SessionConfig struct {
	// TTLMinutes is how long an idle session is kept before pruning.
	TTLMinutes int `yaml:"ttl_minutes" koanf:"ttl_minutes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int  `yaml:"port" koanf:"port"`
	AllowAll bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
