package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docqa/internal/tools"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// handleSearchDocuments answers from the document index.
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	mode := request.GetString("mode", "answer")
	if mode == "answer" && s.rag.CanAnswer() {
		return mcp.NewToolResultText(s.rag.Run(ctx, query)), nil
	}

	limit := request.GetInt("limit", tools.DefaultTopK)
	if limit <= 0 {
		limit = tools.DefaultTopK
	}

	results, err := s.rag.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. Upload documents or run `docqa index` first."), nil
	}
	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

// handleWebSearch runs the grounding tool.
func (s *Server) handleWebSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	out := s.grounding.Run(ctx, query)
	if out == tools.GroundingUnavailable {
		return mcp.NewToolResultError(out), nil
	}
	return mcp.NewToolResultText(out), nil
}

// handleListDocuments lists accepted documents.
func (s *Server) handleListDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.pipeline.Documents(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list documents: %v", err)), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("No documents have been uploaded."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d document(s):\n", len(docs)))
	for _, d := range docs {
		status := "indexed"
		if !d.Indexed {
			status = "not indexed"
		}
		sb.WriteString(fmt.Sprintf("- %s (%d bytes, %s)\n", d.Name, d.Size, status))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleIndexStats returns the index statistics as JSON.
func (s *Server) handleIndexStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read stats: %v", err)), nil
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
