package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/docqa/internal/pipeline"
	"github.com/ziadkadry99/docqa/internal/tools"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Deps are the components the MCP tools call into.
type Deps struct {
	RAG       *tools.RAG
	Grounding *tools.Grounding
	Pipeline  *pipeline.Pipeline
	Store     *vectordb.ChromemStore
}

// Server wraps an MCP server that exposes document search tools.
type Server struct {
	rag       *tools.RAG
	grounding *tools.Grounding
	pipeline  *pipeline.Pipeline
	store     *vectordb.ChromemStore
	mcp       *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies. When the
// RAG tool has no chat model, search_documents only serves raw results.
func NewServer(d Deps) *Server {
	s := &Server{
		rag:       d.RAG,
		grounding: d.Grounding,
		pipeline:  d.Pipeline,
		store:     d.Store,
	}

	s.mcp = server.NewMCPServer(
		"docqa",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	if s.grounding != nil {
		s.mcp.AddTool(webSearchTool, s.handleWebSearch)
	}
	s.mcp.AddTool(listDocumentsTool, s.handleListDocuments)
	s.mcp.AddTool(indexStatsTool, s.handleIndexStats)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
