package vectordb

import (
	"context"
	"errors"

	"repoquery/internal/chunker"
)

// ErrUnavailable wraps vector store failures so callers can distinguish
// "the store broke" from "nothing matched". Retrieval must never
// silently degrade a store failure into an empty context.
var ErrUnavailable = errors.New("vector store unavailable")

// SearchResult pairs a chunk with its similarity score, higher is
// closer.
type SearchResult struct {
	Chunk chunker.Chunk
	Score float32
}

// VectorStore stores chunks per repository and searches them by
// semantic similarity. Each repository is isolated: queries never cross
// repository lines.
type VectorStore interface {
	// Upsert adds or replaces chunks in a repository's index. Chunks
	// with an existing ID are overwritten, which makes re-ingestion
	// idempotent.
	Upsert(ctx context.Context, repoID string, chunks []chunker.Chunk) error

	// Query returns up to limit chunks from the repository ranked by
	// similarity to the query text.
	Query(ctx context.Context, repoID, query string, limit int) ([]SearchResult, error)

	// DeleteByFilePath removes every chunk of one file, used before
	// re-indexing a changed file.
	DeleteByFilePath(ctx context.Context, repoID, filePath string) error

	// DeleteRepository removes a repository's entire index.
	DeleteRepository(ctx context.Context, repoID string) error

	// ListRepositories returns the IDs of all indexed repositories.
	ListRepositories(ctx context.Context) ([]string, error)

	// Count returns the number of chunks indexed for a repository.
	Count(repoID string) int

	// Persist writes the store's data under the given directory.
	Persist(ctx context.Context, dir string) error

	// Load restores previously persisted data. A missing snapshot is
	// not an error; the store simply starts empty.
	Load(ctx context.Context, dir string) error
}
