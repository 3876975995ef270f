package server

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"repoquery/internal/ingest"
	"repoquery/internal/rag"
	"repoquery/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware already gates browser access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type chatRequest struct {
	Type      string `json:"type"`
	RepoID    string `json:"repo_id"`
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content"`
}

type chatResponse struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Content   string      `json:"content,omitempty"`
	Answer    *rag.Answer `json:"answer,omitempty"`
}

// handleChatSocket runs an interactive question loop over a websocket.
// Each "ask" message is answered in turn; a session is created on the
// first message when none is given, so the conversation carries history.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("chat: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("chat: websocket read failed: %v", err)
			}
			return
		}

		resp := s.handleChatMessage(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("chat: websocket write failed: %v", err)
			return
		}
	}
}

func (s *Server) handleChatMessage(ctx context.Context, req chatRequest) chatResponse {
	if req.Type != "ask" {
		return chatResponse{Type: "error", SessionID: req.SessionID,
			Content: "unsupported message type: " + req.Type}
	}
	if req.RepoID == "" || req.Content == "" {
		return chatResponse{Type: "error", SessionID: req.SessionID,
			Content: "repo_id and content are required"}
	}

	if _, err := s.catalog.Get(ctx, req.RepoID); err != nil {
		if errors.Is(err, ingest.ErrRepoNotFound) {
			return chatResponse{Type: "error", SessionID: req.SessionID,
				Content: "repository not found: " + req.RepoID}
		}
		log.Printf("chat: lookup repository %s: %v", req.RepoID, err)
		return chatResponse{Type: "error", SessionID: req.SessionID,
			Content: "failed to load repository"}
	}

	sessionID := req.SessionID
	var history []session.Turn
	if sessionID == "" {
		sess, err := s.sessions.Create(ctx, req.RepoID)
		if err != nil {
			log.Printf("chat: create session: %v", err)
			return chatResponse{Type: "error", Content: "failed to create session"}
		}
		sessionID = sess.ID
	} else {
		var err error
		history, err = s.sessions.History(ctx, sessionID, s.cfg.HistoryTurns)
		if err != nil {
			log.Printf("chat: load history for %s: %v", sessionID, err)
			return chatResponse{Type: "error", SessionID: sessionID,
				Content: "failed to load session history"}
		}
	}

	answer, err := s.engine(s.cfg.TwoPass).Ask(ctx, req.RepoID, req.Content, history)
	if err != nil {
		log.Printf("chat: answer query for %s: %v", req.RepoID, err)
		return chatResponse{Type: "error", SessionID: sessionID,
			Content: "failed to answer query"}
	}

	if err := s.sessions.AppendTurn(ctx, sessionID, session.RoleUser, req.Content, nil); err != nil {
		log.Printf("chat: record user turn: %v", err)
	} else if err := s.sessions.AppendTurn(ctx, sessionID, session.RoleAssistant, answer.Text, answer.SourceChunkIDs()); err != nil {
		log.Printf("chat: record assistant turn: %v", err)
	}

	return chatResponse{Type: "answer", SessionID: sessionID, Content: answer.Text, Answer: answer}
}
