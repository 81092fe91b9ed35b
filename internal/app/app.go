// Package app builds the long-lived clients of a docqa process once and
// hands them to the CLI, HTTP and MCP front ends.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/agent"
	"github.com/ziadkadry99/docqa/internal/blob"
	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/config"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/extractor"
	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/pipeline"
	"github.com/ziadkadry99/docqa/internal/speech"
	"github.com/ziadkadry99/docqa/internal/tools"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// App is the dependency container. Fields are set once by New and are safe
// for concurrent use. LLM and Agent are nil unless Chat was requested.
// Speech is nil when no OpenAI key is configured.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB         *db.DB
	Embeddings *embeddings.Service
	Store      *vectordb.ChromemStore
	Blobs      *blob.LocalStore
	URLs       *blob.URLBuilder
	Chunker    *chunker.Chunker
	Pipeline   *pipeline.Pipeline

	LLM       llm.Provider
	RAG       *tools.RAG
	Grounding *tools.Grounding
	Agent     *agent.Agent

	Speech *speech.OpenAI
}

// Components selects what New builds. Index-only commands skip the chat
// model so they work without an LLM key.
type Components struct {
	Chat   bool
	Speech bool
}

// All builds every component.
var All = Components{Chat: true, Speech: true}

// New opens the databases and constructs the clients named by want.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, want Components) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.DB, err = db.Open(cfg.Index.LedgerPath); err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	embedder, err := embeddings.NewFromConfig(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.Embeddings = embeddings.NewService(embedder, embeddings.WithQueryCache(cfg.Embedding.CacheTTL))

	a.Store, err = vectordb.NewChromemStore(vectordb.Options{
		Dir:        cfg.Index.Dir,
		Compress:   cfg.Index.Compress,
		Collection: cfg.Index.Collection,
		BatchSize:  cfg.Index.BatchSize,
		Ledger:     a.DB,
		Embeddings: a.Embeddings,
		Logger:     logger.Named("vectordb"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	if a.Blobs, err = blob.NewLocalStore(cfg.Storage.Root); err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	a.URLs = blob.NewURLBuilder(cfg.Storage, a.Blobs)

	a.Chunker, err = chunker.New(
		chunker.WithChunkSize(cfg.Chunking.Size),
		chunker.WithOverlap(cfg.Chunking.Overlap),
	)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	a.Pipeline, err = pipeline.New(pipeline.Options{
		Extractor: extractor.New(
			extractor.WithLogger(logger.Named("extractor")),
			extractor.WithFilters(cfg.Ingest.Include, cfg.Ingest.Exclude),
		),
		Chunker:     a.Chunker,
		Embeddings:  a.Embeddings,
		Store:       a.Store,
		Blobs:       a.Blobs,
		DB:          a.DB,
		Logger:      logger.Named("pipeline"),
		Concurrency: cfg.Ingest.Concurrency,
		Include:     cfg.Ingest.Include,
		Exclude:     cfg.Ingest.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	a.Grounding = tools.NewGrounding(withLogger(tools.GroundingOptionsFromConfig(cfg.Grounding), logger.Named("grounding")))

	if want.Chat {
		if err := a.buildChat(); err != nil {
			return nil, err
		}
	} else {
		a.RAG = a.newRAG()
	}

	if want.Speech {
		s, err := speech.NewFromConfig(cfg.Speech, logger.Named("speech"))
		if err != nil {
			logger.Warn("speech disabled", zap.Error(err))
		} else {
			a.Speech = s
		}
	}

	ok = true
	logger.Debug("app ready",
		zap.String("llm", string(cfg.LLM.Provider)),
		zap.String("embedding", a.Embeddings.Model()),
		zap.Int("records", a.Store.Count()))
	return a, nil
}

func (a *App) buildChat() error {
	cfg := a.Config
	provider, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	a.LLM = provider
	a.RAG = a.newRAG()

	a.Agent, err = agent.New(agent.Options{
		Provider:     provider,
		RAG:          a.RAG,
		Grounding:    a.Grounding,
		Memory:       agent.NewMemory(a.DB),
		Model:        cfg.LLM.Model,
		MaxSteps:     cfg.Agent.MaxSteps,
		Temperature:  float64(cfg.Agent.Temperature),
		MaxTokens:    cfg.LLM.MaxTokens,
		HistoryLimit: cfg.Agent.HistoryLimit,
		Logger:       a.Logger.Named("agent"),
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	return nil
}

// newRAG builds the retrieval tool over a.LLM, which may be nil.
func (a *App) newRAG() *tools.RAG {
	return tools.NewRAG(tools.RAGOptions{
		Embeddings: a.Embeddings,
		Store:      a.Store,
		Provider:   a.LLM,
		URLs:       a.URLs,
		MaxTokens:  a.Config.LLM.MaxTokens,
		Logger:     a.Logger.Named("rag"),
	})
}

func withLogger(opts tools.GroundingOptions, logger *zap.Logger) tools.GroundingOptions {
	opts.Logger = logger
	return opts
}

// Close releases the ledger. The vector store persists on every write.
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
		a.DB = nil
	}
	if a.Logger != nil {
		// Sync fails on terminals; the error carries nothing actionable.
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
