package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/binuengoor/OpenSpeech/internal/storage"
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.library.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, files)
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	audio, _, err := s.library.Read(r.Context(), filename)
	if err != nil {
		respondFileError(w, err)
		return
	}
	w.Header().Set("Content-Type", audioContentType(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// handleDownloadText serves the original request text of an artifact as a
// plain-text download.
func (s *Server) handleDownloadText(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	_, meta, err := s.library.Read(r.Context(), filename)
	if err != nil {
		respondFileError(w, err)
		return
	}
	ext := filepath.Ext(filename)
	txtName := strings.TrimSuffix(filename, ext) + ".txt"
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", txtName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(meta.Text))
}

type renameRequest struct {
	NewName string `json:"newName"`
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	newName := strings.TrimSpace(req.NewName)
	if newName == "" {
		respondError(w, http.StatusBadRequest, "missing_new_name", "newName is required")
		return
	}
	// Renames keep the original extension so the stored format stays true.
	if filepath.Ext(newName) == "" {
		newName += filepath.Ext(filename)
	}
	if err := s.library.Rename(r.Context(), filename, newName); err != nil {
		respondFileError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "File renamed",
		"newName": newName,
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if err := s.library.Delete(r.Context(), filename); err != nil {
		respondFileError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "File deleted",
	})
}

func (s *Server) handleDeleteAllFiles(w http.ResponseWriter, r *http.Request) {
	if err := s.library.DeleteAll(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All files deleted",
	})
}

func respondFileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "file_not_found", "file not found")
	case strings.Contains(err.Error(), "invalid filename"):
		respondError(w, http.StatusBadRequest, "invalid_filename", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
	}
}

func audioContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".opus":
		return "audio/opus"
	case ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	case ".pcm":
		return "audio/pcm"
	default:
		return "application/octet-stream"
	}
}
