package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"repoquery/internal/db"
)

// ErrRepoNotFound is returned for unknown repository IDs.
var ErrRepoNotFound = errors.New("repository not found")

// Repository is the catalog record for one indexed source tree.
type Repository struct {
	ID             string     `json:"id"`
	RootDir        string     `json:"root_dir"`
	CreatedAt      time.Time  `json:"created_at"`
	LastIngestedAt *time.Time `json:"last_ingested_at,omitempty"`
	FileCount      int        `json:"file_count"`
	ChunkCount     int        `json:"chunk_count"`
}

// Catalog tracks repository metadata in SQLite, next to sessions and
// jobs. The vector store holds the chunks themselves.
type Catalog struct {
	db *db.DB
}

func NewCatalog(database *db.DB) *Catalog {
	return &Catalog{db: database}
}

// Register creates the catalog entry for a repository if it does not
// exist yet.
func (c *Catalog) Register(ctx context.Context, repoID, rootDir string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO repositories (id, root_dir) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET root_dir = excluded.root_dir`,
		repoID, rootDir)
	if err != nil {
		return fmt.Errorf("register repository: %w", err)
	}
	return nil
}

// RecordIngestion updates the catalog after a completed run.
func (c *Catalog) RecordIngestion(ctx context.Context, result *Result) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE repositories
		SET last_ingested_at = datetime('now'), file_count = ?, chunk_count = ?
		WHERE id = ?`,
		result.FilesIndexed, result.ChunkCount, result.RepoID)
	if err != nil {
		return fmt.Errorf("record ingestion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRepoNotFound
	}
	return nil
}

// Get loads one repository record.
func (c *Catalog) Get(ctx context.Context, repoID string) (*Repository, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, root_dir, created_at, last_ingested_at, file_count, chunk_count
		FROM repositories WHERE id = ?`, repoID)
	repo, err := scanRepository(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRepoNotFound
		}
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return repo, nil
}

// List returns all repositories ordered by ID.
func (c *Catalog) List(ctx context.Context) ([]Repository, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, root_dir, created_at, last_ingested_at, file_count, chunk_count
		FROM repositories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("list repositories: %w", err)
		}
		repos = append(repos, *repo)
	}
	return repos, rows.Err()
}

// Delete removes a repository's catalog entry.
func (c *Catalog) Delete(ctx context.Context, repoID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, repoID)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRepoNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*Repository, error) {
	var repo Repository
	var createdAt string
	var lastIngested sql.NullString
	if err := row.Scan(&repo.ID, &repo.RootDir, &createdAt, &lastIngested,
		&repo.FileCount, &repo.ChunkCount); err != nil {
		return nil, err
	}
	repo.CreatedAt = parseDBTime(createdAt)
	if lastIngested.Valid {
		t := parseDBTime(lastIngested.String)
		repo.LastIngestedAt = &t
	}
	return &repo, nil
}

func parseDBTime(s string) time.Time {
	if t, err := time.Parse(time.DateTime, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
