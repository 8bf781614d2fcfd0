// Package gateway talks to an OpenAI-compatible speech API: one synthesis
// call per text chunk, plus model and voice discovery with built-in fallbacks.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://api.openai.com"

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: timeout},
		log:     log,
	}
}

// SynthesisRequest is the wire shape of one chunk synthesis call.
type SynthesisRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

type Model struct {
	ID     string `json:"id"`
	Object string `json:"object,omitempty"`
}

type Voice struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}

// Synthesize turns one text chunk into a binary audio buffer. Any non-success
// response is mapped to a single descriptive error; there are no retries.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	if req.Model == "" {
		req.Model = "tts-1"
	}
	if req.Voice == "" {
		req.Voice = "alloy"
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = "mp3"
	}
	if req.Speed <= 0 {
		req.Speed = 1.0
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech synthesis failed: %s", apiErrorMessage(resp))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech synthesis failed: empty audio response")
	}
	return audio, nil
}

// Models lists the models the endpoint advertises. When discovery is missing
// or failing the built-in default list is returned instead of an error.
func (c *Client) Models(ctx context.Context) []Model {
	var parsed struct {
		Data []Model `json:"data"`
	}
	if err := c.getJSON(ctx, "/v1/models", &parsed); err != nil || len(parsed.Data) == 0 {
		if err != nil {
			c.log.Warn().Err(err).Msg("models endpoint unavailable, using defaults")
		}
		return DefaultModels()
	}
	return parsed.Data
}

// Voices lists the voices the endpoint advertises, falling back to the
// standard OpenAI voice set when the endpoint has no voice catalog.
func (c *Client) Voices(ctx context.Context) []Voice {
	var parsed struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.getJSON(ctx, "/v1/voices", &parsed); err != nil || len(parsed.Voices) == 0 {
		if err != nil {
			c.log.Warn().Err(err).Msg("voices endpoint unavailable, using defaults")
		}
		return DefaultVoices()
	}
	return parsed.Voices
}

func DefaultModels() []Model {
	return []Model{
		{ID: "tts-1", Object: "model"},
		{ID: "tts-1-hd", Object: "model"},
	}
}

func DefaultVoices() []Voice {
	return []Voice{
		{Name: "alloy", Language: "en-US", Gender: "neutral"},
		{Name: "echo", Language: "en-US", Gender: "male"},
		{Name: "fable", Language: "en-US", Gender: "neutral"},
		{Name: "onyx", Language: "en-US", Gender: "male"},
		{Name: "nova", Language: "en-US", Gender: "female"},
		{Name: "shimmer", Language: "en-US", Gender: "female"},
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

// apiErrorMessage digs the human-readable message out of an error response,
// falling back to the HTTP status line.
func apiErrorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, msg)
}
