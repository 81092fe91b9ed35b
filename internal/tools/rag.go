// Package tools holds the two tools the agent can call: retrieval over the
// document index and web grounding.
package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/blob"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// NoDocumentsSentinel is returned verbatim when retrieval finds nothing.
// The agent treats it as the signal to fall back to grounding.
const NoDocumentsSentinel = "I couldn't find any relevant documents to answer your question. Please make sure documents are indexed in the database."

// IsSentinel reports whether a rag result is the no-documents sentinel.
func IsSentinel(result string) bool {
	return strings.TrimSpace(result) == NoDocumentsSentinel
}

// IsFailure reports whether a tool result is an "Error: ..." payload.
func IsFailure(result string) bool {
	return strings.HasPrefix(strings.TrimSpace(result), "Error:")
}

const (
	DefaultTopK        = 3
	ragTemperature     = 0.1
	knowledgeBaseLabel = "**Knowledge Base Answer:**"
	sourcesLabel       = "**Sources:**"
)

const ragSystemPrompt = `You are a helpful AI assistant that answers questions based on the provided context.

Instructions:
1. Answer the question using ONLY the information from the provided context.
2. Be concise and accurate.
3. If the context doesn't contain enough information to answer the question, say so.
4. DO NOT add inline citations or source references in your answer (e.g., don't write "(Source: file.pdf)").
5. Just provide the answer. The sources are added automatically at the end.
6. Provide a clear, well-structured answer without mentioning document names.`

// Citation points at a document that contributed to an answer.
type Citation struct {
	Filename   string  `json:"filename"`
	Source     string  `json:"source"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
	Page       int     `json:"page,omitempty"`
}

// RAGAnswer is the structured result of a retrieval turn.
type RAGAnswer struct {
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	// Found is false when nothing was retrieved; Answer is then the sentinel.
	Found bool      `json:"found"`
	Usage llm.Usage `json:"usage"`
}

// Format renders the answer with its sources list.
func (a *RAGAnswer) Format() string {
	if !a.Found {
		return NoDocumentsSentinel
	}

	var sb strings.Builder
	sb.WriteString(knowledgeBaseLabel)
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(a.Answer))
	if len(a.Citations) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(sourcesLabel)
		for _, c := range a.Citations {
			fmt.Fprintf(&sb, "\n- [%s](%s) (similarity: %.3f)", c.Filename, c.URL, c.Similarity)
		}
	}
	return sb.String()
}

// RAGOptions wires a RAG tool.
type RAGOptions struct {
	Embeddings *embeddings.Service
	Store      vectordb.VectorStore
	Provider   llm.Provider
	URLs       *blob.URLBuilder
	TopK       int
	MaxTokens  int
	Logger     *zap.Logger
}

// RAG answers questions from the document index.
type RAG struct {
	embeddings *embeddings.Service
	store      vectordb.VectorStore
	provider   llm.Provider
	urls       *blob.URLBuilder
	topK       int
	maxTokens  int
	logger     *zap.Logger
}

func NewRAG(opts RAGOptions) *RAG {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RAG{
		embeddings: opts.Embeddings,
		store:      opts.Store,
		provider:   opts.Provider,
		urls:       opts.URLs,
		topK:       opts.TopK,
		maxTokens:  opts.MaxTokens,
		logger:     opts.Logger,
	}
}

func (r *RAG) Name() string { return "rag" }

// CanAnswer reports whether a chat model is wired. Without one only Search
// is usable.
func (r *RAG) CanAnswer() bool { return r.provider != nil }

func (r *RAG) Description() string {
	return "Search the internal knowledge base of uploaded documents and answer from them. " +
		"Always call this first for any information-seeking question."
}

// Search embeds query and returns the nearest records.
func (r *RAG) Search(ctx context.Context, query string, k int) ([]vectordb.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	vec, err := r.embeddings.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.store.SimilaritySearch(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return results, nil
}

// Answer retrieves the top passages and asks the model to answer from them.
func (r *RAG) Answer(ctx context.Context, query string) (*RAGAnswer, error) {
	log := r.logger.With(zap.String("tool", r.Name()))
	log.Info("retrieving", zap.String("query", query), zap.Int("k", r.topK))

	results, err := r.Search(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		log.Warn("no relevant documents found")
		return &RAGAnswer{Query: query, Answer: NoDocumentsSentinel}, nil
	}
	if r.provider == nil {
		return nil, errors.New("no chat model configured")
	}

	var contextParts []string
	var citations []Citation
	seen := make(map[string]bool)
	for i, res := range results {
		filename := res.Metadata.Filename
		if filename == "" {
			filename = "Unknown Document"
		}
		contextParts = append(contextParts, fmt.Sprintf("[Document %d: %s]\n%s\n", i+1, filename, res.Text))

		if seen[filename] {
			continue
		}
		seen[filename] = true
		citations = append(citations, Citation{
			Filename:   filename,
			Source:     res.Metadata.Source,
			URL:        r.documentURL(filename),
			Similarity: math.Round((1-float64(res.Distance))*1000) / 1000,
			Page:       res.Metadata.Page,
		})
	}

	userPrompt := fmt.Sprintf("Context from retrieved documents:\n\n%s\nQuestion: %s\n\n"+
		"Please provide a comprehensive answer based ONLY on the context above. "+
		"Do not mention document names or add citations in your response.",
		strings.Join(contextParts, "\n"), query)

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: ragSystemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
		Temperature: ragTemperature,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	answer := &RAGAnswer{
		Query:     query,
		Answer:    resp.Content,
		Citations: citations,
		Found:     true,
	}
	answer.Usage.Add(resp)
	log.Info("answer generated", zap.Int("sources", len(citations)), zap.Int("chars", len(resp.Content)))
	return answer, nil
}

func (r *RAG) documentURL(filename string) string {
	if r.urls == nil {
		return filename
	}
	return r.urls.URL(filename)
}

// Run is the tool entry point. Failures come back as "Error: ..." text.
func (r *RAG) Run(ctx context.Context, query string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("rag tool panic", zap.Any("panic", rec))
			out = fmt.Sprintf("Error: %v", rec)
		}
	}()

	answer, err := r.Answer(ctx, query)
	if err != nil {
		r.logger.Error("rag tool failed", zap.Error(err))
		return fmt.Sprintf("Error: %v", err)
	}
	return answer.Format()
}
