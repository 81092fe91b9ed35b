package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/agent"
	"github.com/ziadkadry99/docqa/internal/app"
	"github.com/ziadkadry99/docqa/internal/blob"
	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/config"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/embeddings"
	"github.com/ziadkadry99/docqa/internal/pipeline"
	"github.com/ziadkadry99/docqa/internal/speech"
	"github.com/ziadkadry99/docqa/internal/testutil"
	"github.com/ziadkadry99/docqa/internal/tools"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

type testEnv struct {
	srv      *Server
	app      *app.App
	provider *testutil.ScriptedProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.RequestTimeout = 10 * time.Second

	svc := embeddings.NewService(testutil.NewWordEmbedder(64))
	store, err := vectordb.NewChromemStore(vectordb.Options{Ledger: database, Embeddings: svc})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ch, err := chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(40))
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	p, err := pipeline.New(pipeline.Options{
		Chunker:    ch,
		Embeddings: svc,
		Store:      store,
		Blobs:      blobs,
		DB:         database,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}

	provider := testutil.NewScriptedProvider()
	urls := blob.NewURLBuilder(config.StorageConfig{Account: "acct", Container: "docs"}, blobs)
	rag := tools.NewRAG(tools.RAGOptions{Embeddings: svc, Store: store, Provider: provider, URLs: urls})
	grounding := tools.NewGrounding(tools.GroundingOptions{})
	ag, err := agent.New(agent.Options{
		Provider:  provider,
		RAG:       rag,
		Grounding: grounding,
		Memory:    agent.NewMemory(database),
		MaxSteps:  4,
	})
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}

	a := &app.App{
		Config:     cfg,
		Logger:     zap.NewNop(),
		DB:         database,
		Embeddings: svc,
		Store:      store,
		Blobs:      blobs,
		URLs:       urls,
		Chunker:    ch,
		Pipeline:   p,
		LLM:        provider,
		RAG:        rag,
		Grounding:  grounding,
		Agent:      ag,
	}
	return &testEnv{srv: New(a), app: a, provider: provider}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, field, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	io.WriteString(fw, content)
	mw.Close()

	path := "/api/documents"
	if field == "audio" {
		path = "/api/speech/transcribe"
	}
	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(t, req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func jsonBody(v any) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("OPTIONS", "/api/query", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := env.do(t, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestQuery(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Push(testutil.Text("Paris is the capital. See [Paris](https://en.wikipedia.org/wiki/Paris)."))

	w := env.do(t, httptest.NewRequest("POST", "/api/query", jsonBody(map[string]string{"query": "hello"})))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp queryResponse
	decode(t, w, &resp)
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}
	if resp.ThreadID == "" {
		t.Error("expected a generated thread id")
	}
	if !strings.HasPrefix(resp.Response, "Paris is the capital.") {
		t.Errorf("unexpected response %q", resp.Response)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].URL != "https://en.wikipedia.org/wiki/Paris" {
		t.Errorf("unexpected citations %+v", resp.Citations)
	}

	msgs, err := env.app.Agent.Memory().Messages(context.Background(), resp.ThreadID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected user and assistant messages, got %d", len(msgs))
	}
}

func TestQuery_ModelErrorIsReportedInBody(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Fail(fmt.Errorf("upstream unavailable"))

	w := env.do(t, httptest.NewRequest("POST", "/api/query",
		jsonBody(map[string]string{"query": "hello", "thread_id": "t-1"})))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp queryResponse
	decode(t, w, &resp)
	if resp.Success || resp.Error == "" {
		t.Errorf("expected a failed response, got %+v", resp)
	}
	if resp.ThreadID != "t-1" {
		t.Errorf("expected thread id t-1, got %q", resp.ThreadID)
	}
}

func TestQuery_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body io.Reader
	}{
		{"empty query", jsonBody(map[string]string{"query": "   "})},
		{"malformed", strings.NewReader("{")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, httptest.NewRequest("POST", "/api/query", tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}

	env.app.Agent = nil
	w := env.do(t, httptest.NewRequest("POST", "/api/query", jsonBody(map[string]string{"query": "hi"})))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without an agent, got %d", w.Code)
	}
}

func TestDocumentsLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.upload(t, "file", "notes.txt", "The capital of France is Paris.")
	if w.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", w.Code)
	}
	var res pipeline.UploadResult
	decode(t, w, &res)
	if !res.Success || res.Namespace != "accepted" || res.ChunksAdded == 0 {
		t.Fatalf("unexpected upload result %+v", res)
	}

	// A second upload of the same name is rejected but still answers 200.
	w = env.upload(t, "file", "notes.txt", "The capital of France is Paris.")
	decode(t, w, &res)
	if w.Code != http.StatusOK || res.Success {
		t.Errorf("expected duplicate rejection, got %d %+v", w.Code, res)
	}

	w = env.do(t, httptest.NewRequest("GET", "/api/documents", nil))
	var docs []documentResponse
	decode(t, w, &docs)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if !docs[0].Indexed {
		t.Error("expected notes.txt to be indexed")
	}
	if docs[0].URL != "https://acct.blob.core.windows.net/docs/notes.txt" {
		t.Errorf("unexpected url %q", docs[0].URL)
	}

	w = env.do(t, httptest.NewRequest("GET", "/api/uploads?limit=10", nil))
	var events []pipeline.UploadEvent
	decode(t, w, &events)
	if len(events) != 2 {
		t.Errorf("expected 2 upload events, got %d", len(events))
	}

	w = env.do(t, httptest.NewRequest("DELETE", "/api/documents/notes.txt", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.app.Store.Count() != 0 {
		t.Errorf("expected empty index, got %d records", env.app.Store.Count())
	}

	w = env.do(t, httptest.NewRequest("DELETE", "/api/documents/notes.txt", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", w.Code)
	}
}

func TestUploadThenRAGAnswersWithSources(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.upload(t, "file", "notes.txt", "The capital of France is Paris.")
	var res pipeline.UploadResult
	decode(t, w, &res)
	if !res.Success || res.ChunksAdded != 1 {
		t.Fatalf("expected one indexed chunk, got %+v", res)
	}

	env.provider.Push(testutil.Text("The capital of France is Paris."))
	out := env.app.RAG.Run(ctx, "What is the capital of France?")

	if !strings.Contains(out, "Paris") {
		t.Errorf("expected Paris in the answer, got %q", out)
	}
	if !strings.Contains(out, "**Sources:**") ||
		!strings.Contains(out, "[notes.txt](https://acct.blob.core.windows.net/docs/notes.txt)") {
		t.Errorf("expected notes.txt among the sources, got %q", out)
	}

	reqs := env.provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one completion, got %d", len(reqs))
	}
	prompt := reqs[0].Messages[len(reqs[0].Messages)-1].Content
	if !strings.Contains(prompt, "[Document 1: notes.txt]") || !strings.Contains(prompt, "The capital of France is Paris.") {
		t.Errorf("retrieved passage missing from prompt %q", prompt)
	}

	// The same retrieval backs the agent's rag tool.
	env.provider.Push(testutil.Calls(testutil.Call("c1", "rag", "capital of France")))
	env.provider.Push(testutil.Text("The capital of France is Paris."))
	env.provider.Push(testutil.Text("Paris."))
	reply, err := env.app.Agent.Invoke(ctx, "What is the capital of France?", "t1")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(reply.Trace) != 1 || !strings.Contains(reply.Trace[0].Result, "notes.txt") {
		t.Errorf("expected a rag result citing notes.txt, got %+v", reply.Trace)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, httptest.NewRequest("POST", "/api/documents", strings.NewReader("")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestIndexStatsAndSync(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "file", "notes.txt", "The capital of France is Paris.")

	w := env.do(t, httptest.NewRequest("GET", "/api/index/stats", nil))
	var stats vectordb.Stats
	decode(t, w, &stats)
	if stats.UniqueSources != 1 || stats.TotalRecords == 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := env.app.Blobs.Delete(context.Background(), blob.Accepted, "notes.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	w = env.do(t, httptest.NewRequest("POST", "/api/index/sync", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d", w.Code)
	}
	var sync vectordb.SyncStats
	decode(t, w, &sync)
	if sync.MissingSources != 1 || sync.Remaining != 0 {
		t.Errorf("unexpected sync stats %+v", sync)
	}
}

func TestSync_KeepsFilesIndexedOutsideAccepted(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "handbook.txt")
	if err := os.WriteFile(path, []byte("Expense reports are due on Fridays."), 0o644); err != nil {
		t.Fatal(err)
	}
	if res := env.app.Pipeline.ProcessSingleFile(context.Background(), path); !res.Success {
		t.Fatalf("ProcessSingleFile: %s", res.Message)
	}
	before := env.app.Store.Count()

	w := env.do(t, httptest.NewRequest("POST", "/api/index/sync", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d", w.Code)
	}
	var sync vectordb.SyncStats
	decode(t, w, &sync)
	if sync.MissingSources != 0 || sync.Deleted != 0 {
		t.Errorf("existing file was treated as stale: %+v", sync)
	}
	if env.app.Store.Count() != before {
		t.Errorf("expected %d records after sync, got %d", before, env.app.Store.Count())
	}
}

func TestThreads(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Push(testutil.Text("Hi there."))
	env.do(t, httptest.NewRequest("POST", "/api/query",
		jsonBody(map[string]string{"query": "hello", "thread_id": "t-42"})))

	w := env.do(t, httptest.NewRequest("GET", "/api/threads", nil))
	var threads []agent.Thread
	decode(t, w, &threads)
	if len(threads) != 1 || threads[0].ID != "t-42" || threads[0].Messages != 2 {
		t.Fatalf("unexpected threads %+v", threads)
	}

	w = env.do(t, httptest.NewRequest("GET", "/api/threads/t-42/messages", nil))
	var msgs []agent.StoredMessage
	decode(t, w, &msgs)
	if len(msgs) != 2 || msgs[0].Content != "hello" {
		t.Errorf("unexpected messages %+v", msgs)
	}

	w = env.do(t, httptest.NewRequest("DELETE", "/api/threads/t-42", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	w = env.do(t, httptest.NewRequest("DELETE", "/api/threads/t-42", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestQueryStream(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Push(testutil.Text("Hello from the stream."))

	ts := httptest.NewServer(env.srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/query/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"query": "hello", "thread_id": "ws-1"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var kinds []string
	for {
		var ev map[string]any
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		kind, _ := ev["type"].(string)
		kinds = append(kinds, kind)
		if kind == "final" {
			if ev["thread_id"] != "ws-1" {
				t.Errorf("expected thread ws-1, got %v", ev["thread_id"])
			}
			if ev["text"] != "Hello from the stream." {
				t.Errorf("unexpected final text %v", ev["text"])
			}
			break
		}
		if kind == "error" {
			t.Fatalf("unexpected error event %v", ev)
		}
	}
	if kinds[0] != "text_delta" {
		t.Errorf("expected text deltas before final, got %v", kinds)
	}

	// An empty query yields an error event on the same connection.
	conn.WriteJSON(map[string]string{"query": ""})
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev["type"] != "error" {
		t.Errorf("expected error event, got %v", ev)
	}
}

func TestSpeech(t *testing.T) {
	env := newTestEnv(t)

	w := env.upload(t, "audio", "q.wav", "RIFF")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without speech, got %d", w.Code)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/audio/transcriptions":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"text": "what is the capital of france"}`)
		case "/v1/audio/speech":
			w.Header().Set("Content-Type", "audio/mpeg")
			io.WriteString(w, "ID3")
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()
	env.app.Speech = speech.NewOpenAI("k", config.SpeechConfig{BaseURL: upstream.URL + "/v1"}, nil)

	w = env.upload(t, "audio", "q.wav", "RIFF")
	if w.Code != http.StatusOK {
		t.Fatalf("transcribe: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var tr map[string]any
	decode(t, w, &tr)
	if tr["text"] != "what is the capital of france" {
		t.Errorf("unexpected transcript %v", tr["text"])
	}

	w = env.do(t, httptest.NewRequest("POST", "/api/speech/synthesize", jsonBody(map[string]string{"text": "Paris."})))
	if w.Code != http.StatusOK {
		t.Fatalf("synthesize: expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("expected audio/mpeg, got %q", ct)
	}
	if w.Body.String() != "ID3" {
		t.Errorf("unexpected audio %q", w.Body.String())
	}

	w = env.do(t, httptest.NewRequest("POST", "/api/speech/synthesize", jsonBody(map[string]string{"text": ""})))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty text, got %d", w.Code)
	}
}
