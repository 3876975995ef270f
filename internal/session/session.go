package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"repoquery/internal/db"
)

// ErrNotFound is returned when a session ID does not exist, which also
// covers sessions removed by TTL pruning.
var ErrNotFound = errors.New("session not found")

// Turn roles. Only conversation turns are stored; system prompts are
// rebuilt per query.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one conversation bound to a repository.
type Session struct {
	ID        string
	RepoID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one message within a session. Assistant turns carry the IDs
// of the chunks their answer cited.
type Turn struct {
	Role        string
	Content     string
	CitedChunks []string
	CreatedAt   time.Time
}

// Store persists sessions and their turns in SQLite.
type Store struct {
	db *db.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create starts a new session for a repository.
func (s *Store) Create(ctx context.Context, repoID string) (*Session, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, repo_id) VALUES (?, ?)`, id, repoID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.Get(ctx, id)
}

// Get loads a session by ID.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repo_id, created_at, updated_at FROM sessions WHERE id = ?`, id)

	var sess Session
	var createdAt, updatedAt string
	if err := row.Scan(&sess.ID, &sess.RepoID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = parseDBTime(createdAt)
	sess.UpdatedAt = parseDBTime(updatedAt)
	return &sess, nil
}

// AppendTurn records a message and marks the session active, resetting
// its TTL clock. citedChunks may be nil for user turns.
func (s *Store) AppendTurn(ctx context.Context, sessionID, role, content string, citedChunks []string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = datetime('now') WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	cited := ""
	if len(citedChunks) > 0 {
		data, err := json.Marshal(citedChunks)
		if err != nil {
			return fmt.Errorf("encode cited chunks: %w", err)
		}
		cited = string(data)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, role, content, cited_chunks) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, cited)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// History returns the most recent turns of a session in chronological
// order. limit <= 0 returns all turns.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	query := `SELECT role, content, cited_chunks, created_at FROM turns WHERE session_id = ? ORDER BY id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var cited, createdAt string
		if err := rows.Scan(&t.Role, &t.Content, &cited, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if cited != "" {
			if err := json.Unmarshal([]byte(cited), &t.CitedChunks); err != nil {
				return nil, fmt.Errorf("decode cited chunks: %w", err)
			}
		}
		t.CreatedAt = parseDBTime(createdAt)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}

	// Reverse from newest-first to chronological.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Delete removes a session and, through the cascade, its turns.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Prune removes sessions idle longer than ttl and returns how many were
// deleted.
func (s *Store) Prune(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl).Format(time.DateTime)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
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
