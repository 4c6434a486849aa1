package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"study-retrieval-engine/internal/embedding"
	"study-retrieval-engine/internal/engine"
	"study-retrieval-engine/internal/loader"
	"study-retrieval-engine/internal/storage"
)

type Server struct {
	engine       *engine.Engine
	knowledgeDir string
}

// NewServer wires the HTTP surface to the engine. knowledgeDir anchors
// relative ingest paths and receives uploads.
func NewServer(e *engine.Engine, knowledgeDir string) *Server {
	return &Server{
		engine:       e,
		knowledgeDir: knowledgeDir,
	}
}

type IngestRequest struct {
	DocID  string `json:"doc_id"`
	Source string `json:"source,omitempty"`
	Text   string `json:"text"`
}

type IngestPathRequest struct {
	Path string `json:"path"`
}

type IngestResponse struct {
	ChunksAdded int    `json:"chunks_added"`
	Detail      string `json:"detail"`
}

type QueryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"` // 0 means the default of 5
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps engine and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument),
		errors.Is(err, loader.ErrUnsupported),
		errors.Is(err, storage.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, loader.ErrUnreadable),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, embedding.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "study-retrieval-engine",
		"ok":        true,
		"time_utc":  time.Now().UTC().Format(time.RFC3339),
		"endpoints": []string{"/healthz", "/status", "/ingest", "/ingest/path", "/ingest/upload", "/query"},
	})
}

func (s *Server) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := s.engine.Status()
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.engine.Ingest(r.Context(), req.DocID, req.Source, req.Text)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{
		ChunksAdded: res.ChunksAdded,
		Detail:      fmt.Sprintf("Ingested document %s", res.DocumentID),
	})
}

func (s *Server) HandleIngestPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IngestPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	// Relative paths live under the knowledge directory.
	target := req.Path
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.knowledgeDir, target)
	}

	info, err := os.Stat(target)
	if err != nil {
		http.Error(w, fmt.Sprintf("Path not found: %s", target), http.StatusNotFound)
		return
	}

	if !info.IsDir() {
		count, err := s.ingestFile(r.Context(), target)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, IngestResponse{
			ChunksAdded: count,
			Detail:      fmt.Sprintf("Ingested file %s", target),
		})
		return
	}

	count, err := s.ingestDirectory(r.Context(), target)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{
		ChunksAdded: count,
		Detail:      fmt.Sprintf("Ingested directory %s", target),
	})
}

func (s *Server) HandleIngestUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.knowledgeDir, 0o755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Base name only, so a crafted filename cannot escape the knowledge dir.
	dest := filepath.Join(s.knowledgeDir, filepath.Base(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := out.Close(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	count, err := s.ingestFile(r.Context(), dest)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{
		ChunksAdded: count,
		Detail:      fmt.Sprintf("Uploaded and ingested %s", dest),
	})
}

func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.K == 0 {
		req.K = 5
	}

	resp, err := s.engine.Query(r.Context(), req.Question, req.K)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) ingestFile(ctx context.Context, path string) (int, error) {
	text, err := loader.Load(path)
	if err != nil {
		return 0, err
	}
	id := s.docID(path)
	res, err := s.engine.Ingest(ctx, id, id, text)
	if err != nil {
		return 0, err
	}
	return res.ChunksAdded, nil
}

func (s *Server) ingestDirectory(ctx context.Context, root string) (int, error) {
	paths, err := loader.Walk(root)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, path := range paths {
		count, err := s.ingestFile(ctx, path)
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}

// docID names a document by its path relative to the knowledge dir when it
// lives there, otherwise by its full cleaned path.
func (s *Server) docID(path string) string {
	if rel, err := filepath.Rel(s.knowledgeDir, path); err == nil &&
		rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(filepath.Clean(path))
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HandleRoot)
	mux.HandleFunc("/healthz", s.HandleHealthz)
	mux.HandleFunc("/status", s.HandleStatus)
	mux.HandleFunc("/ingest", s.HandleIngest)
	mux.HandleFunc("/ingest/path", s.HandleIngestPath)
	mux.HandleFunc("/ingest/upload", s.HandleIngestUpload)
	mux.HandleFunc("/query", s.HandleQuery)
	return mux
}

func (s *Server) Start(addr string) error {
	log.Printf("API server listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}
