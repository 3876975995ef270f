package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"repoquery/internal/chunker"
	"repoquery/internal/progress"
	"repoquery/internal/vectordb"
	"repoquery/internal/walker"
)

// Config controls one ingestion run.
type Config struct {
	Include        []string
	Exclude        []string
	MaxFileSize    int64
	MaxConcurrency int
	MaxChunkSize   int
}

// FileError records a per-file ingestion problem. Parse failures land
// here too: the file is still indexed as a single block, degraded, and
// the error is reported rather than swallowed.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result summarizes an ingestion run.
type Result struct {
	RepoID       string      `json:"repo_id"`
	FilesTotal   int         `json:"files_total"`
	FilesIndexed int         `json:"files_indexed"`
	ChunkCount   int         `json:"chunk_count"`
	FileErrors   []FileError `json:"file_errors,omitempty"`
}

// Pipeline walks a source tree, chunks every file, and upserts the
// chunks into the vector store. Files are processed concurrently with a
// bounded worker pool; individual file failures never abort the run.
type Pipeline struct {
	store    vectordb.VectorStore
	registry *chunker.Registry
	cfg      Config
}

func NewPipeline(store vectordb.VectorStore, registry *chunker.Registry, cfg Config) *Pipeline {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	return &Pipeline{store: store, registry: registry, cfg: cfg}
}

// Run ingests the tree rooted at rootDir into the repository's index.
// Chunk IDs are derived from file coordinates, so re-running over an
// unchanged tree rewrites the same entries.
func (p *Pipeline) Run(ctx context.Context, repoID, rootDir string, reporter progress.Reporter) (*Result, error) {
	if reporter == nil {
		reporter = progress.NopReporter{}
	}

	files, err := walker.Walk(walker.Config{
		RootDir:     rootDir,
		Include:     p.cfg.Include,
		Exclude:     p.cfg.Exclude,
		MaxFileSize: p.cfg.MaxFileSize,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", repoID, err)
	}

	result := &Result{RepoID: repoID, FilesTotal: len(files)}
	reporter.Start(len(files))
	defer reporter.Finish()

	var (
		mu        sync.Mutex
		processed atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			chunks, fileErr := p.ingestFile(gctx, repoID, file)

			mu.Lock()
			if fileErr != nil {
				result.FileErrors = append(result.FileErrors, FileError{
					Path: file.RelPath,
					Err:  fileErr.Error(),
				})
			}
			if chunks > 0 || fileErr == nil {
				result.FilesIndexed++
				result.ChunkCount += chunks
			}
			mu.Unlock()

			reporter.Update(int(processed.Add(1)), file.RelPath)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", repoID, err)
	}

	sort.Slice(result.FileErrors, func(i, j int) bool {
		return result.FileErrors[i].Path < result.FileErrors[j].Path
	})
	return result, nil
}

// ingestFile chunks one file and replaces its index entries. The
// returned chunk count is 0 when the store rejected the file; a non-nil
// error with a positive count means the file was indexed degraded.
func (p *Pipeline) ingestFile(ctx context.Context, repoID string, file walker.SourceFile) (int, error) {
	bounds, parseErr := p.registry.Extract(file)
	chunks := chunker.Assemble(repoID, file, bounds, p.cfg.MaxChunkSize)

	// Old entries for this path go first so renamed or shrunk
	// definitions do not leave stale chunks behind.
	if err := p.store.DeleteByFilePath(ctx, repoID, file.RelPath); err != nil {
		return 0, err
	}
	if err := p.store.Upsert(ctx, repoID, chunks); err != nil {
		return 0, err
	}

	return len(chunks), parseErr
}
