package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchDocumentsTool defines the search_documents MCP tool.
var searchDocumentsTool = mcp.NewTool("search_documents",
	mcp.WithDescription("Search the uploaded documents. In answer mode returns a grounded answer with citations; in raw mode returns the matching passages."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language question or search query"),
	),
	mcp.WithString("mode",
		mcp.Description("answer (default) or raw"),
		mcp.Enum("answer", "raw"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of passages in raw mode (default 3)"),
	),
)

// webSearchTool defines the web_search MCP tool.
var webSearchTool = mcp.NewTool("web_search",
	mcp.WithDescription("Answer a question from the web with cited sources. Use when the documents do not cover the topic."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Question to research"),
	),
)

// listDocumentsTool defines the list_documents MCP tool.
var listDocumentsTool = mcp.NewTool("list_documents",
	mcp.WithDescription("List the accepted documents and whether each is indexed."),
)

// indexStatsTool defines the index_stats MCP tool.
var indexStatsTool = mcp.NewTool("index_stats",
	mcp.WithDescription("Get vector index statistics: record count, sources, extensions and dimensions."),
)
