// Package server exposes the query, document and speech API over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/config"
)

// Server is the docqa HTTP API.
type Server struct {
	app        *app.App
	cfg        config.ServerConfig
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server over the components of a.
func New(a *app.App) *Server {
	s := &Server{
		app:    a,
		cfg:    a.Config.Server,
		logger: a.Logger.Named("server"),
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Websocket turns outlive the request timeout.
	r.Get("/api/query/stream", s.handleQueryStream)

	r.Group(func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}

		r.Post("/api/query", s.handleQuery)

		r.Get("/api/documents", s.handleListDocuments)
		r.Post("/api/documents", s.handleUpload)
		r.Delete("/api/documents/{name}", s.handleDeleteDocument)

		r.Post("/api/index/sync", s.handleSync)
		r.Get("/api/index/stats", s.handleStats)
		r.Get("/api/uploads", s.handleUploads)

		r.Get("/api/threads", s.handleThreads)
		r.Get("/api/threads/{id}/messages", s.handleThreadMessages)
		r.Delete("/api/threads/{id}", s.handleDeleteThread)

		r.Post("/api/speech/transcribe", s.handleTranscribe)
		r.Post("/api/speech/synthesize", s.handleSynthesize)
	})

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured address.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("docqa server listening", zap.String("addr", s.cfg.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
