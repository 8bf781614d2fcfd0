package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/binuengoor/OpenSpeech/internal/gateway"
	"github.com/binuengoor/OpenSpeech/internal/queue"
	"github.com/binuengoor/OpenSpeech/internal/speech"
)

type generateRequest struct {
	Text           string  `json:"text"`
	Voice          string  `json:"voice"`
	Model          string  `json:"model"`
	Speed          float64 `json:"speed"`
	Format         string  `json:"format"`
	CombineAudio   bool    `json:"combineAudio"`
	CustomFilename string  `json:"customFilename"`
}

type generateResponse struct {
	Success   bool   `json:"success"`
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Chunks    int    `json:"chunks"`
	Combined  bool   `json:"combined"`
	Filename  string `json:"filename"`
}

func (req generateRequest) speechRequest() speech.Request {
	return speech.Request{
		Text:     req.Text,
		Voice:    req.Voice,
		Model:    req.Model,
		Format:   req.Format,
		Speed:    req.Speed,
		Combine:  req.CombineAudio,
		Filename: req.CustomFilename,
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	res, err := s.gen.Generate(r.Context(), req.speechRequest())
	if err != nil {
		if errors.Is(err, speech.ErrEmptyText) {
			respondError(w, http.StatusBadRequest, "missing_text", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "generation_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, generateResponse{
		Success:   true,
		AudioData: res.Audio,
		Format:    res.Format,
		Chunks:    res.Chunks,
		Combined:  res.Combined,
		Filename:  res.Filename,
	})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	voice := req.Voice
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}
	id, err := s.queue.Add(queue.Spec{
		Type:      "tts",
		Label:     jobLabel(req.Text),
		Voice:     voice,
		Processor: s.gen.Processor(req.speechRequest()),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "enqueue_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"jobId":   id,
		"message": "Job added to queue",
	})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.queue.Status())
}

func (s *Server) handleQueueJobs(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.queue.Jobs())
}

func (s *Server) handleQueueJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, found := s.queue.Get(id)
	if !found {
		respondError(w, http.StatusNotFound, "job_not_found", "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	if err := s.queue.Cancel(id); err != nil {
		respondError(w, http.StatusNotFound, "not_cancellable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Job cancelled",
	})
}

type discoveryRequest struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"apiKey"`
}

// discoveryCatalog returns the catalog to query: the configured one, or a
// throwaway client when the caller supplies endpoint overrides (used by the
// UI to validate settings before saving them).
func (s *Server) discoveryCatalog(r *http.Request) Catalog {
	var req discoveryRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Endpoint) == "" {
		return s.catalog
	}
	return gateway.NewClient(gateway.Config{
		BaseURL: req.Endpoint,
		APIKey:  req.APIKey,
		Timeout: s.cfg.TTSTimeout,
	}, s.log)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.discoveryCatalog(r).Models(r.Context()))
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.discoveryCatalog(r).Voices(r.Context()))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Stages.Snapshot())
}

func (s *Server) handleProcessing(w http.ResponseWriter, _ *http.Request) {
	if err := s.track.CleanOld(); err != nil {
		s.log.Error().Err(err).Msg("purging stale tracker entries")
	}
	respondJSON(w, http.StatusOK, s.track.List())
}

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_job_id", "job id must be an integer")
		return 0, false
	}
	return id, true
}

// jobLabel is the short text excerpt shown in queue listings.
func jobLabel(text string) string {
	runes := []rune(text)
	if len(runes) <= 100 {
		return text
	}
	return string(runes[:100]) + "..."
}
