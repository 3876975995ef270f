package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchCodeTool defines the search_code MCP tool.
var searchCodeTool = mcp.NewTool("search_code",
	mcp.WithDescription("Search an indexed repository for code semantically. Returns matching code chunks with file paths and line numbers."),
	mcp.WithString("repository",
		mcp.Required(),
		mcp.Description("ID of the indexed repository to search"),
	),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of results to return (default 10)"),
	),
)

// askCodebaseTool defines the ask_codebase MCP tool.
var askCodebaseTool = mcp.NewTool("ask_codebase",
	mcp.WithDescription("Ask a natural language question about an indexed repository. Returns a cited answer synthesized from the most relevant code."),
	mcp.WithString("repository",
		mcp.Required(),
		mcp.Description("ID of the indexed repository to query"),
	),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("Natural language question about the repository"),
	),
	mcp.WithString("mode",
		mcp.Description("Retrieval mode"),
		mcp.Enum("single-pass", "two-pass"),
	),
)

// listRepositoriesTool defines the list_repositories MCP tool.
var listRepositoriesTool = mcp.NewTool("list_repositories",
	mcp.WithDescription("List the indexed repositories available for searching and querying."),
)
