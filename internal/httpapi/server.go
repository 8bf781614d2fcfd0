// Package httpapi exposes the generation pipeline over HTTP: blocking and
// queued synthesis, queue inspection and cancellation, model/voice
// discovery, the artifact library, and two WebSocket streams (queue events
// and live logs).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/binuengoor/OpenSpeech/internal/config"
	"github.com/binuengoor/OpenSpeech/internal/gateway"
	"github.com/binuengoor/OpenSpeech/internal/logstream"
	"github.com/binuengoor/OpenSpeech/internal/observability"
	"github.com/binuengoor/OpenSpeech/internal/queue"
	"github.com/binuengoor/OpenSpeech/internal/speech"
	"github.com/binuengoor/OpenSpeech/internal/storage"
	"github.com/binuengoor/OpenSpeech/internal/tracker"
)

// Catalog answers model and voice discovery, falling back to built-in
// defaults when the upstream endpoint cannot be reached.
type Catalog interface {
	Models(ctx context.Context) []gateway.Model
	Voices(ctx context.Context) []gateway.Voice
}

type Server struct {
	cfg      config.Config
	gen      *speech.Generator
	queue    *queue.Queue
	track    *tracker.Tracker
	library  *storage.Library
	catalog  Catalog
	logs     *logstream.Broadcaster
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func New(cfg config.Config, gen *speech.Generator, q *queue.Queue, track *tracker.Tracker, library *storage.Library, catalog Catalog, logs *logstream.Broadcaster, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		gen:     gen,
		queue:   q,
		track:   track,
		library: library,
		catalog: catalog,
		logs:    logs,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up; other sites must not
				// be able to watch the queue or logs if the service is ever
				// exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/tts/generate", s.handleGenerate)
	r.Post("/api/tts/queue", s.handleEnqueue)
	r.Get("/api/tts/queue/status", s.handleQueueStatus)
	r.Get("/api/tts/queue/jobs", s.handleQueueJobs)
	r.Get("/api/tts/queue/jobs/{id}", s.handleQueueJob)
	r.Delete("/api/tts/queue/jobs/{id}", s.handleCancelJob)
	r.Post("/api/tts/models", s.handleModels)
	r.Post("/api/tts/voices", s.handleVoices)
	r.Get("/api/tts/processing", s.handleProcessing)
	r.Get("/api/tts/stats", s.handleStats)

	if s.library != nil {
		r.Get("/api/storage/files", s.handleListFiles)
		r.Get("/api/storage/files/{filename}", s.handleDownloadFile)
		r.Patch("/api/storage/files/{filename}", s.handleRenameFile)
		r.Delete("/api/storage/files/{filename}", s.handleDeleteFile)
		r.Delete("/api/storage/files", s.handleDeleteAllFiles)
		r.Get("/api/storage/text/{filename}", s.handleDownloadText)
	}

	r.Get("/ws/queue", s.handleQueueWS)
	r.Get("/ws/logs", s.handleLogsWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":                  "ok",
		"file_management_enabled": s.library != nil,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
