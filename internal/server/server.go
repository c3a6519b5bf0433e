// Package server is the HTTP boundary: the Twilio webhook plus a small
// JSON API. Errors from the core are mapped to a user-safe message here;
// upstream detail stays in the logs.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"secondbrain/internal/domain"
	"secondbrain/internal/log"
	"secondbrain/internal/whatsapp"
)

const unavailableReply = "I couldn't process that right now, please try again in a moment."

type Server struct {
	assistant domain.Assistant
	store     domain.TaskStore
	retriever domain.Retriever
	index     domain.VectorIndex
	logger    log.Logger
}

func New(assistant domain.Assistant, store domain.TaskStore, retriever domain.Retriever,
	index domain.VectorIndex, logger log.Logger) *Server {
	return &Server{assistant: assistant, store: store, retriever: retriever, index: index, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /whatsapp/webhook", s.handleWebhook)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("POST /api/summarize", s.handleSummarize)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/reminders", s.handleReminders)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.handleDeleteReminder)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// handleWebhook always answers 200 with TwiML: Twilio redelivers on
// non-2xx, and a failed turn should apologize once, not three times.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	in, err := whatsapp.ParseInbound(r)
	if err != nil {
		s.logger.Warn("bad webhook delivery", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	reply, err := s.assistant.HandleMessage(r.Context(), in.From, in.Body)
	if err != nil {
		s.logger.Error("message handling failed", "owner", in.From, "error", err)
		reply = userMessage(err)
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(whatsapp.TwiML(reply))
}

type ingestRequest struct {
	Owner      string `json:"owner"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	n, err := s.assistant.Ingest(r.Context(), req.Owner, req.DocumentID, req.Text, domain.DocumentMetadata{
		Filename: req.Filename, MimeType: req.MimeType, UploadedAt: time.Now(),
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{"chunks": n})
}

type askRequest struct {
	Owner    string `json:"owner"`
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}
	history, err := s.store.History(r.Context(), req.Owner, 10)
	if err != nil {
		s.fail(w, err)
		return
	}
	answer, err := s.assistant.Query(r.Context(), req.Owner, req.Question, history)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"answer":          answer.Text,
		"cited_chunk_ids": answer.CitedChunkIDs,
	})
}

type summarizeRequest struct {
	Owner string `json:"owner"`
	Text  string `json:"text"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	summary, err := s.assistant.Summarize(r.Context(), req.Owner, req.Text)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"summary": summary})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, query := q.Get("owner"), q.Get("q")
	if owner == "" || query == "" {
		http.Error(w, "owner and q are required", http.StatusBadRequest)
		return
	}
	results, err := s.retriever.Retrieve(r.Context(), query, owner, 10, 0)
	if err != nil {
		s.fail(w, err)
		return
	}
	type hit struct {
		ChunkID    string  `json:"chunk_id"`
		DocumentID string  `json:"document_id"`
		Text       string  `json:"text"`
		Score      float64 `json:"score"`
	}
	hits := make([]hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, hit{res.Chunk.ID, res.Chunk.DocumentID, res.Chunk.Text, res.Score})
	}
	s.respond(w, http.StatusOK, map[string]any{"results": hits})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner is required", http.StatusBadRequest)
		return
	}
	tasks, err := s.store.Tasks(r.Context(), owner)
	if err != nil {
		s.fail(w, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	s.respond(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner is required", http.StatusBadRequest)
		return
	}
	reminders, err := s.store.Reminders(r.Context(), owner)
	if err != nil {
		s.fail(w, err)
		return
	}
	if reminders == nil {
		reminders = []domain.Reminder{}
	}
	s.respond(w, http.StatusOK, map[string]any{"reminders": reminders})
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteReminder(r.Context(), r.PathValue("id")); err != nil {
		http.Error(w, "reminder not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"status": "ok", "index_size": s.index.Len()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrModelUnavailable), errors.Is(err, domain.ErrTimeout):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrAuthFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	} else {
		s.logger.Warn("request failed", "status", status, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": userMessage(err)})
}

// userMessage is what leaves the system; upstream bodies and statuses
// never do.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "That request was empty or malformed."
	case errors.Is(err, domain.ErrModelUnavailable), errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrAuthFailed):
		return unavailableReply
	default:
		return "Something went wrong on my side."
	}
}
