package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"repoquery/internal/db"
	"repoquery/internal/vectordb"
)

// ErrJobNotFound is returned for unknown job IDs.
var ErrJobNotFound = errors.New("ingest job not found")

// JobStatus is the lifecycle state of a background ingestion.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one background ingestion run.
type Job struct {
	ID         string      `json:"id"`
	RepoID     string      `json:"repo_id"`
	Status     JobStatus   `json:"status"`
	FilesTotal int         `json:"files_total"`
	FilesDone  int         `json:"files_done"`
	ChunkCount int         `json:"chunk_count"`
	Error      string      `json:"error,omitempty"`
	FileErrors []FileError `json:"file_errors,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// JobManager runs ingestions in the background and tracks their state
// in SQLite so status survives across queries (and, for failures,
// across restarts).
type JobManager struct {
	db       *db.DB
	pipeline *Pipeline
	catalog  *Catalog
	store    vectordb.VectorStore
	dataDir  string

	wg sync.WaitGroup
}

func NewJobManager(database *db.DB, pipeline *Pipeline, catalog *Catalog, store vectordb.VectorStore, dataDir string) *JobManager {
	return &JobManager{
		db:       database,
		pipeline: pipeline,
		catalog:  catalog,
		store:    store,
		dataDir:  dataDir,
	}
}

// Enqueue registers the repository, records a pending job, and starts
// the ingestion in the background. The returned job carries the ID to
// poll.
func (m *JobManager) Enqueue(ctx context.Context, repoID, rootDir string) (*Job, error) {
	if err := m.catalog.Register(ctx, repoID, rootDir); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO ingest_jobs (id, repo_id, status) VALUES (?, ?, ?)`,
		jobID, repoID, JobPending)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// The job outlives the enqueuing request.
		m.run(context.Background(), jobID, repoID, rootDir)
	}()

	return m.Get(ctx, jobID)
}

// Wait blocks until all running jobs finish, used on shutdown.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

func (m *JobManager) run(ctx context.Context, jobID, repoID, rootDir string) {
	m.setStatus(ctx, jobID, JobRunning, "")

	result, err := m.pipeline.Run(ctx, repoID, rootDir, &jobReporter{db: m.db, jobID: jobID})
	if err != nil {
		log.Printf("ingest job %s failed: %v", jobID, err)
		m.setStatus(ctx, jobID, JobFailed, err.Error())
		return
	}

	for _, fe := range result.FileErrors {
		if _, err := m.db.ExecContext(ctx,
			`INSERT INTO ingest_file_errors (job_id, file_path, error) VALUES (?, ?, ?)`,
			jobID, fe.Path, fe.Err); err != nil {
			log.Printf("ingest job %s: record file error: %v", jobID, err)
		}
	}

	if _, err := m.db.ExecContext(ctx, `
		UPDATE ingest_jobs
		SET files_total = ?, files_done = ?, chunk_count = ?
		WHERE id = ?`,
		result.FilesTotal, result.FilesTotal, result.ChunkCount, jobID); err != nil {
		log.Printf("ingest job %s: record result: %v", jobID, err)
	}

	if err := m.catalog.RecordIngestion(ctx, result); err != nil {
		log.Printf("ingest job %s: update catalog: %v", jobID, err)
	}
	if err := m.store.Persist(ctx, m.dataDir); err != nil {
		log.Printf("ingest job %s failed to persist index: %v", jobID, err)
		m.setStatus(ctx, jobID, JobFailed, fmt.Sprintf("persist index: %v", err))
		return
	}

	m.setStatus(ctx, jobID, JobSucceeded, "")
}

func (m *JobManager) setStatus(ctx context.Context, jobID string, status JobStatus, errMsg string) {
	var stampCol string
	switch status {
	case JobRunning:
		stampCol = "started_at"
	case JobSucceeded, JobFailed:
		stampCol = "finished_at"
	}

	query := `UPDATE ingest_jobs SET status = ?, error = ?`
	if stampCol != "" {
		query += `, ` + stampCol + ` = datetime('now')`
	}
	query += ` WHERE id = ?`

	if _, err := m.db.ExecContext(ctx, query, status, errMsg, jobID); err != nil {
		log.Printf("ingest job %s: set status %s: %v", jobID, status, err)
	}
}

// Get loads a job record including its per-file errors.
func (m *JobManager) Get(ctx context.Context, jobID string) (*Job, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, repo_id, status, files_total, files_done, chunk_count, error,
		       created_at, started_at, finished_at
		FROM ingest_jobs WHERE id = ?`, jobID)

	var job Job
	var createdAt string
	var startedAt, finishedAt sql.NullString
	if err := row.Scan(&job.ID, &job.RepoID, &job.Status, &job.FilesTotal,
		&job.FilesDone, &job.ChunkCount, &job.Error,
		&createdAt, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	job.CreatedAt = parseDBTime(createdAt)
	if startedAt.Valid {
		t := parseDBTime(startedAt.String)
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := parseDBTime(finishedAt.String)
		job.FinishedAt = &t
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT file_path, error FROM ingest_file_errors WHERE job_id = ? ORDER BY file_path`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job errors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fe FileError
		if err := rows.Scan(&fe.Path, &fe.Err); err != nil {
			return nil, fmt.Errorf("scan job error: %w", err)
		}
		job.FileErrors = append(job.FileErrors, fe)
	}
	return &job, rows.Err()
}

// jobReporter mirrors pipeline progress into the job row so pollers see
// files_total and files_done move.
type jobReporter struct {
	db    *db.DB
	jobID string
}

func (r *jobReporter) Start(total int) {
	r.db.Exec(`UPDATE ingest_jobs SET files_total = ? WHERE id = ?`, total, r.jobID)
}

func (r *jobReporter) Update(current int, _ string) {
	r.db.Exec(`UPDATE ingest_jobs SET files_done = ? WHERE id = ?`, current, r.jobID)
}

func (r *jobReporter) Finish() {}
