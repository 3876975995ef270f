package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"repoquery/internal/ingest"
	"repoquery/internal/rag"
	"repoquery/internal/session"
	"repoquery/internal/vectordb"
)

type ingestRequest struct {
	// ID defaults to the base name of RootDir.
	ID      string `json:"id"`
	RootDir string `json:"root_dir"`
}

type queryRequest struct {
	RepoID    string `json:"repo_id"`
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
	// Mode is "single-pass" or "two-pass"; empty uses the server default.
	Mode string `json:"mode,omitempty"`
}

type queryResponse struct {
	SessionID string `json:"session_id,omitempty"`
	*rag.Answer
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleIngestRepo starts a background ingestion and returns 202 with
// the job record to poll.
func (s *Server) handleIngestRepo(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RootDir == "" {
		respondError(w, http.StatusBadRequest, "root_dir is required")
		return
	}
	if req.ID == "" {
		req.ID = filepath.Base(filepath.Clean(req.RootDir))
	}

	job, err := s.jobs.Enqueue(r.Context(), req.ID, req.RootDir)
	if err != nil {
		log.Printf("server: enqueue ingestion for %s: %v", req.ID, err)
		respondError(w, http.StatusInternalServerError, "failed to start ingestion")
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.catalog.List(r.Context())
	if err != nil {
		log.Printf("server: list repositories: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list repositories")
		return
	}
	if repos == nil {
		repos = []ingest.Repository{}
	}
	respondJSON(w, http.StatusOK, repos)
}

// handleDeleteRepo drops the repository from both the vector store and
// the catalog.
func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	repoID := chi.URLParam(r, "repoID")

	if err := s.store.DeleteRepository(r.Context(), repoID); err != nil {
		log.Printf("server: delete index for %s: %v", repoID, err)
		respondError(w, http.StatusInternalServerError, "failed to delete repository index")
		return
	}
	if err := s.catalog.Delete(r.Context(), repoID); err != nil {
		if errors.Is(err, ingest.ErrRepoNotFound) {
			respondError(w, http.StatusNotFound, "repository not found")
			return
		}
		log.Printf("server: delete catalog entry for %s: %v", repoID, err)
		respondError(w, http.StatusInternalServerError, "failed to delete repository")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, ingest.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		log.Printf("server: get job: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RepoID == "" || strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "repo_id and question are required")
		return
	}

	twoPass, err := resolveMode(req.Mode, s.cfg.TwoPass)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.catalog.Get(r.Context(), req.RepoID); err != nil {
		if errors.Is(err, ingest.ErrRepoNotFound) {
			respondError(w, http.StatusNotFound, "repository not found")
			return
		}
		log.Printf("server: lookup repository %s: %v", req.RepoID, err)
		respondError(w, http.StatusInternalServerError, "failed to load repository")
		return
	}

	var history []session.Turn
	if req.SessionID != "" {
		if _, err := s.sessions.Get(r.Context(), req.SessionID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				respondError(w, http.StatusNotFound, "session not found")
				return
			}
			log.Printf("server: lookup session %s: %v", req.SessionID, err)
			respondError(w, http.StatusInternalServerError, "failed to load session")
			return
		}
		history, err = s.sessions.History(r.Context(), req.SessionID, s.cfg.HistoryTurns)
		if err != nil {
			log.Printf("server: load history for %s: %v", req.SessionID, err)
			respondError(w, http.StatusInternalServerError, "failed to load session history")
			return
		}
	}

	answer, err := s.engine(twoPass).Ask(r.Context(), req.RepoID, req.Question, history)
	if err != nil {
		log.Printf("server: answer query for %s: %v", req.RepoID, err)
		if errors.Is(err, vectordb.ErrUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "vector store unavailable")
			return
		}
		respondError(w, http.StatusBadGateway, "failed to answer query")
		return
	}

	if req.SessionID != "" {
		if err := s.recordTurns(r, req.SessionID, req.Question, answer); err != nil {
			log.Printf("server: record turns for %s: %v", req.SessionID, err)
		}
	}

	respondJSON(w, http.StatusOK, queryResponse{SessionID: req.SessionID, Answer: answer})
}

func (s *Server) recordTurns(r *http.Request, sessionID, question string, answer *rag.Answer) error {
	if err := s.sessions.AppendTurn(r.Context(), sessionID, session.RoleUser, question, nil); err != nil {
		return err
	}
	return s.sessions.AppendTurn(r.Context(), sessionID, session.RoleAssistant, answer.Text, answer.SourceChunkIDs())
}

func resolveMode(mode string, defaultTwoPass bool) (bool, error) {
	switch mode {
	case "":
		return defaultTwoPass, nil
	case "single-pass":
		return false, nil
	case "two-pass":
		return true, nil
	default:
		return false, errors.New(`mode must be "single-pass" or "two-pass"`)
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
