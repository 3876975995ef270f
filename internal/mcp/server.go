package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"repoquery/internal/ingest"
	"repoquery/internal/llm"
	"repoquery/internal/rag"
	"repoquery/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes repository search and
// question answering tools over stdio.
type Server struct {
	store    vectordb.VectorStore
	provider llm.Provider
	catalog  *ingest.Catalog
	ragOpts  rag.Options
	mcp      *server.MCPServer
}

// NewServer creates the MCP server with the given dependencies.
func NewServer(store vectordb.VectorStore, provider llm.Provider, catalog *ingest.Catalog, ragOpts rag.Options) *Server {
	s := &Server{
		store:    store,
		provider: provider,
		catalog:  catalog,
		ragOpts:  ragOpts,
	}

	s.mcp = server.NewMCPServer(
		"repoquery",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchCodeTool, s.handleSearchCode)
	s.mcp.AddTool(askCodebaseTool, s.handleAskCodebase)
	s.mcp.AddTool(listRepositoriesTool, s.handleListRepositories)
}

// Serve starts the MCP server on stdio. Stdout carries MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
