package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/blob"
	"github.com/ziadkadry99/docqa/internal/llm"
	"github.com/ziadkadry99/docqa/internal/pipeline"
	"github.com/ziadkadry99/docqa/internal/tools"
)

// maxUploadBytes bounds multipart bodies for documents and audio.
const maxUploadBytes = 64 << 20

type queryRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id"`
}

type queryResponse struct {
	Success   bool         `json:"success"`
	Query     string       `json:"query"`
	Response  string       `json:"response,omitempty"`
	Error     string       `json:"error,omitempty"`
	ThreadID  string       `json:"thread_id"`
	Citations []tools.Link `json:"citations,omitempty"`
	Usage     *llm.Usage   `json:"usage,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type documentResponse struct {
	pipeline.Document
	URL string `json:"url"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if s.app.Agent == nil {
		writeError(w, http.StatusServiceUnavailable, "chat model not configured")
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	reply, err := s.app.Agent.Invoke(r.Context(), req.Query, req.ThreadID)
	if err != nil {
		s.logger.Error("query failed", zap.String("thread_id", req.ThreadID), zap.Error(err))
		writeJSON(w, http.StatusOK, queryResponse{
			Query:    req.Query,
			Error:    err.Error(),
			ThreadID: req.ThreadID,
		})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Success:   true,
		Query:     req.Query,
		Response:  reply.Text,
		ThreadID:  reply.ThreadID,
		Citations: tools.ExtractLinks(reply.Text),
		Usage:     &reply.Usage,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	// Ingestion failures are reported in the result body, not the status.
	res := s.app.Pipeline.HandleUpload(r.Context(), header.Filename, file)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.app.Pipeline.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{Document: d, URL: s.app.URLs.URL(d.Name)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	deleted, err := s.app.Pipeline.RemoveDocument(r.Context(), name)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found: "+name)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"name":               name,
		"embeddings_deleted": deleted,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Store.SyncWithFilesystem(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.Store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	events, err := s.app.Pipeline.Events().List(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	if s.app.Agent == nil {
		writeError(w, http.StatusServiceUnavailable, "chat model not configured")
		return
	}
	threads, err := s.app.Agent.Memory().Threads(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	if s.app.Agent == nil {
		writeError(w, http.StatusServiceUnavailable, "chat model not configured")
		return
	}
	msgs, err := s.app.Agent.Memory().Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if s.app.Agent == nil {
		writeError(w, http.StatusServiceUnavailable, "chat model not configured")
		return
	}
	id := chi.URLParam(r, "id")
	found, err := s.app.Agent.Memory().Delete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "thread not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "thread_id": id})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.app.Speech == nil {
		writeError(w, http.StatusServiceUnavailable, "speech not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"audio\" is required")
		return
	}
	defer file.Close()

	text, err := s.app.Speech.Recognize(r.Context(), file, header.Filename)
	if err != nil {
		s.logger.Error("transcription failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "text": text})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if s.app.Speech == nil {
		writeError(w, http.StatusServiceUnavailable, "speech not configured")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := s.app.Speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("synthesis failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
