package vectordb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"repoquery/internal/chunker"
	"repoquery/internal/embeddings"
)

const (
	collectionPrefix = "repo-"
	snapshotFile     = "chromem.gob.gz"
)

// ChromemStore implements VectorStore on chromem-go with one collection
// per repository.
type ChromemStore struct {
	db        *chromem.DB
	embedFunc chromem.EmbeddingFunc
}

// NewChromemStore creates an in-memory ChromemStore. Call Load to
// restore a persisted snapshot.
func NewChromemStore(embedder embeddings.Embedder) *ChromemStore {
	return &ChromemStore{
		db:        chromem.NewDB(),
		embedFunc: embeddings.ToChromemFunc(embedder),
	}
}

func (s *ChromemStore) collection(repoID string) (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(collectionPrefix+repoID, nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("%w: collection for %s: %v", ErrUnavailable, repoID, err)
	}
	return col, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, repoID string, chunks []chunker.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	col, err := s.collection(repoID)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:       c.ID,
			Content:  c.Text,
			Metadata: metadataToMap(c.Metadata),
		}
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: upsert into %s: %v", ErrUnavailable, repoID, err)
	}
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, repoID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	col := s.db.GetCollection(collectionPrefix+repoID, s.embedFunc)
	if col == nil {
		return nil, fmt.Errorf("%w: repository %s is not indexed", ErrUnavailable, repoID)
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrUnavailable, repoID, err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			Chunk: chunker.Chunk{
				ID:       r.ID,
				Text:     r.Content,
				Metadata: mapToMetadata(r.Metadata),
			},
			Score: r.Similarity,
		}
	}
	return out, nil
}

func (s *ChromemStore) DeleteByFilePath(ctx context.Context, repoID, filePath string) error {
	col := s.db.GetCollection(collectionPrefix+repoID, s.embedFunc)
	if col == nil {
		return nil
	}
	where := map[string]string{"file_path": filePath}
	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("%w: delete %s from %s: %v", ErrUnavailable, filePath, repoID, err)
	}
	return nil
}

func (s *ChromemStore) DeleteRepository(_ context.Context, repoID string) error {
	if err := s.db.DeleteCollection(collectionPrefix + repoID); err != nil {
		return fmt.Errorf("%w: delete repository %s: %v", ErrUnavailable, repoID, err)
	}
	return nil
}

func (s *ChromemStore) ListRepositories(_ context.Context) ([]string, error) {
	var repos []string
	for name := range s.db.ListCollections() {
		if strings.HasPrefix(name, collectionPrefix) {
			repos = append(repos, strings.TrimPrefix(name, collectionPrefix))
		}
	}
	sort.Strings(repos)
	return repos, nil
}

func (s *ChromemStore) Count(repoID string) int {
	col := s.db.GetCollection(collectionPrefix+repoID, s.embedFunc)
	if col == nil {
		return 0
	}
	return col.Count()
}

func (s *ChromemStore) Persist(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return s.db.ExportToFile(filepath.Join(dir, snapshotFile), true, "")
}

func (s *ChromemStore) Load(_ context.Context, dir string) error {
	path := filepath.Join(dir, snapshotFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := s.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

// metadataToMap flattens chunk metadata into the map[string]string
// chromem stores.
func metadataToMap(m chunker.Metadata) map[string]string {
	return map[string]string{
		"repo_id":    m.RepoID,
		"file_path":  m.FilePath,
		"line_start": strconv.Itoa(m.StartLine),
		"line_end":   strconv.Itoa(m.EndLine),
		"language":   m.Language,
		"symbol":     m.QualifiedName,
		"kind":       string(m.Kind),
	}
}

func mapToMetadata(m map[string]string) chunker.Metadata {
	lineStart, _ := strconv.Atoi(m["line_start"])
	lineEnd, _ := strconv.Atoi(m["line_end"])
	return chunker.Metadata{
		RepoID:        m["repo_id"],
		FilePath:      m["file_path"],
		StartLine:     lineStart,
		EndLine:       lineEnd,
		Language:      m["language"],
		QualifiedName: m["symbol"],
		Kind:          chunker.Kind(m["kind"]),
	}
}
