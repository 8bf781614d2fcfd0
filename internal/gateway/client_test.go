package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSynthesize(t *testing.T) {
	var gotReq SynthesisRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %q, want /v1/audio/speech", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test"}, zerolog.Nop())
	audio, err := c.Synthesize(context.Background(), SynthesisRequest{
		Input: "Hello there.",
		Voice: "nova",
		Speed: 1.25,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "fake-mp3-bytes" {
		t.Fatalf("audio = %q, want fake-mp3-bytes", audio)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q, want bearer key", gotAuth)
	}
	if gotReq.Model != "tts-1" || gotReq.ResponseFormat != "mp3" {
		t.Fatalf("request defaults = %+v, want tts-1/mp3", gotReq)
	}
	if gotReq.Voice != "nova" || gotReq.Speed != 1.25 {
		t.Fatalf("request = %+v, want voice/speed preserved", gotReq)
	}
}

func TestSynthesizeErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"voice not found"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Synthesize(context.Background(), SynthesisRequest{Input: "x"})
	if err == nil {
		t.Fatalf("Synthesize() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), "speech synthesis failed") {
		t.Fatalf("error = %q, want synthesis label", err)
	}
	if !strings.Contains(err.Error(), "voice not found") {
		t.Fatalf("error = %q, want api message surfaced", err)
	}
}

func TestModelsDiscovery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %q, want /v1/models", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []Model{{ID: "kokoro", Object: "model"}},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	got := c.Models(context.Background())
	if len(got) != 1 || got[0].ID != "kokoro" {
		t.Fatalf("Models() = %+v, want [kokoro]", got)
	}
}

func TestModelsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	got := c.Models(context.Background())
	if len(got) != 2 || got[0].ID != "tts-1" {
		t.Fatalf("Models() fallback = %+v, want built-in defaults", got)
	}
}

func TestVoicesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zerolog.Nop())
	got := c.Voices(context.Background())
	if len(got) != 6 {
		t.Fatalf("Voices() fallback = %d voices, want 6", len(got))
	}
	if got[0].Name != "alloy" {
		t.Fatalf("Voices()[0] = %+v, want alloy first", got[0])
	}
}

func TestBaseURLTrimming(t *testing.T) {
	c := NewClient(Config{BaseURL: "  https://example.com/  "}, zerolog.Nop())
	if c.baseURL != "https://example.com" {
		t.Fatalf("baseURL = %q, want trimmed", c.baseURL)
	}
	c = NewClient(Config{}, zerolog.Nop())
	if c.baseURL != DefaultBaseURL {
		t.Fatalf("baseURL = %q, want default", c.baseURL)
	}
}
