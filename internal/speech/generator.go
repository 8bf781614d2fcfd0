// Package speech drives one text-to-speech request end to end: split the
// text, synthesize every chunk in order through the gateway, optionally
// stitch the pieces into one buffer, persist the artifact, and keep the
// in-flight tracker honest whatever the outcome.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/binuengoor/OpenSpeech/internal/gateway"
	"github.com/binuengoor/OpenSpeech/internal/observability"
	"github.com/binuengoor/OpenSpeech/internal/queue"
	"github.com/binuengoor/OpenSpeech/internal/storage"
	"github.com/binuengoor/OpenSpeech/internal/textsplit"
	"github.com/binuengoor/OpenSpeech/internal/tracker"
)

// previewLen is how much of the request text goes into the tracker entry's
// preview field. The preview doubles as half of the removal key, so it must
// match what Remove is later called with.
const previewLen = 30

// Synthesizer produces one audio buffer per text chunk.
type Synthesizer interface {
	Synthesize(ctx context.Context, req gateway.SynthesisRequest) ([]byte, error)
}

// Concatenator joins ordered same-format audio buffers into one buffer.
type Concatenator interface {
	Stitch(ctx context.Context, buffers [][]byte, format string) ([]byte, error)
}

// Defaults supplies the per-request fallbacks applied when a caller omits a
// field.
type Defaults struct {
	Voice         string
	Model         string
	Format        string
	Speed         float64
	MaxChunkChars int
}

// Request is one generation request after HTTP-level decoding.
type Request struct {
	Text     string
	Voice    string
	Model    string
	Format   string
	Speed    float64
	Combine  bool
	Filename string // optional custom stem, inserted before the voice name
}

// Result is the outcome of a successful generation.
type Result struct {
	Filename    string
	Audio       []byte
	Format      string
	Chunks      int
	Combined    bool
	RequestedAt time.Time
}

// Generator owns the generation pipeline. The storage library may be nil
// when file management is disabled; audio is then returned but never saved.
type Generator struct {
	synth    Synthesizer
	concat   Concatenator
	track    *tracker.Tracker
	library  *storage.Library
	metrics  *observability.Metrics
	defaults Defaults
	log      zerolog.Logger
	now      func() time.Time
}

func NewGenerator(synth Synthesizer, concat Concatenator, track *tracker.Tracker, library *storage.Library, metrics *observability.Metrics, defaults Defaults, log zerolog.Logger) *Generator {
	if defaults.MaxChunkChars <= 0 {
		defaults.MaxChunkChars = textsplit.DefaultMaxChars
	}
	return &Generator{
		synth:    synth,
		concat:   concat,
		track:    track,
		library:  library,
		metrics:  metrics,
		defaults: defaults,
		log:      log,
		now:      time.Now,
	}
}

var ErrEmptyText = errors.New("no text to synthesize")

// Generate runs the whole pipeline for one request. Gateway and stitching
// failures abort the request; storage and tracker failures are logged and
// swallowed. The tracker entry is removed on every path out of this
// function.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	return g.generate(ctx, req, nil)
}

func (g *Generator) generate(ctx context.Context, req Request, report queue.ProgressFunc) (Result, error) {
	requestedAt := g.now()
	g.applyDefaults(&req)

	if strings.TrimSpace(req.Text) == "" {
		return Result{}, ErrEmptyText
	}

	chunks := textsplit.Split(req.Text, g.defaults.MaxChunkChars)
	if len(chunks) == 0 {
		return Result{}, ErrEmptyText
	}

	preview := Preview(req.Text)
	log := g.log.With().Str("voice", req.Voice).Str("preview", preview).Logger()

	if _, err := g.track.Add(req.Voice, preview, req.Text, requestedAt); err != nil {
		log.Error().Err(err).Msg("recording in-flight entry")
		g.incident("tracker_write_failed")
	}
	defer func() {
		if err := g.track.Remove(req.Voice, preview); err != nil {
			log.Error().Err(err).Msg("removing in-flight entry")
			g.incident("tracker_write_failed")
		}
	}()

	if g.metrics != nil {
		g.metrics.GenerationsInFlight.Inc()
		defer g.metrics.GenerationsInFlight.Dec()
		defer func(start time.Time) {
			g.metrics.Stages.Observe(observability.StageTotal, g.now().Sub(start))
		}(g.now())
	}

	log.Info().Int("chunks", len(chunks)).Msg("split text")
	if report != nil {
		report(10, fmt.Sprintf("Split into %d chunks", len(chunks)))
	}

	buffers := make([][]byte, 0, len(chunks))
	for i, chunk := range chunks {
		if report != nil {
			progress := 10 + int(float64(i)/float64(len(chunks))*70)
			report(progress, fmt.Sprintf("Processing chunk %d/%d", i+1, len(chunks)))
		}
		log.Info().Int("chunk", i+1).Int("of", len(chunks)).Msg("synthesizing chunk")

		start := g.now()
		buf, err := g.synth.Synthesize(ctx, gateway.SynthesisRequest{
			Model:          req.Model,
			Input:          chunk,
			Voice:          req.Voice,
			ResponseFormat: req.Format,
			Speed:          req.Speed,
		})
		if err != nil {
			g.countOutcome("failed")
			return Result{}, err
		}
		if g.metrics != nil {
			g.metrics.ObserveSynthesis(g.now().Sub(start))
			g.metrics.Stages.Observe(observability.StageSynthesize, g.now().Sub(start))
		}
		buffers = append(buffers, buf)
	}

	combined := req.Combine && len(buffers) > 1
	if report != nil {
		report(80, "Combining audio...")
	}

	audio := buffers[0]
	if combined {
		log.Info().Msg("stitching chunk audio")
		start := g.now()
		stitched, err := g.concat.Stitch(ctx, buffers, req.Format)
		if err != nil {
			g.countStitch("failed")
			g.countOutcome("failed")
			return Result{}, err
		}
		g.countStitch("ok")
		if g.metrics != nil {
			g.metrics.Stages.Observe(observability.StageStitch, g.now().Sub(start))
		}
		audio = stitched
	}

	if report != nil {
		report(90, "Saving file...")
	}

	filename := Filename(requestedAt, req.Filename, req.Voice, req.Format)
	if g.library != nil {
		meta := storage.Metadata{
			Filename:    filename,
			Voice:       req.Voice,
			Text:        req.Text,
			Speed:       req.Speed,
			Format:      req.Format,
			Chunks:      len(chunks),
			Combined:    combined,
			RequestedAt: requestedAt.UTC(),
		}
		start := g.now()
		if err := g.library.Save(ctx, filename, audio, meta); err != nil {
			// The caller still holds the audio; losing durability is not
			// a request failure.
			log.Error().Err(err).Str("filename", filename).Msg("saving artifact")
			g.incident("storage_save_failed")
		} else {
			log.Info().Str("filename", filename).Msg("saved artifact")
			if g.metrics != nil {
				g.metrics.Stages.Observe(observability.StageSave, g.now().Sub(start))
			}
		}
	}

	g.countOutcome("ok")
	log.Info().Msg("generation completed")

	return Result{
		Filename:    filename,
		Audio:       audio,
		Format:      req.Format,
		Chunks:      len(chunks),
		Combined:    combined,
		RequestedAt: requestedAt,
	}, nil
}

// QueuedResult is the payload attached to a completed queue job.
type QueuedResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Combined bool   `json:"combined"`
}

// Processor wraps a request as a queue unit of work with the standard
// progress milestones.
func (g *Generator) Processor(req Request) queue.Processor {
	return func(ctx context.Context, report queue.ProgressFunc) (any, error) {
		res, err := g.generate(ctx, req, report)
		if err != nil {
			return nil, err
		}
		return QueuedResult{
			Filename: res.Filename,
			Chunks:   res.Chunks,
			Combined: res.Combined,
		}, nil
	}
}

func (g *Generator) applyDefaults(req *Request) {
	if req.Voice == "" {
		req.Voice = g.defaults.Voice
	}
	if req.Model == "" {
		req.Model = g.defaults.Model
	}
	if req.Format == "" {
		req.Format = g.defaults.Format
	}
	if req.Speed <= 0 {
		req.Speed = g.defaults.Speed
	}
}

func (g *Generator) countOutcome(outcome string) {
	if g.metrics != nil {
		g.metrics.GenerationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (g *Generator) countStitch(outcome string) {
	if g.metrics != nil {
		g.metrics.StitchOperations.WithLabelValues(outcome).Inc()
	}
}

func (g *Generator) incident(name string) {
	if g.metrics != nil {
		g.metrics.Stages.ObserveIncident(name)
	}
}

// Preview returns the first 30 characters of text with newlines flattened
// to spaces. It is stored on the tracker entry and replayed verbatim on
// removal, so both sides must derive it the same way.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewLen {
		runes = runes[:previewLen]
	}
	s := string(runes)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

// Filename builds the artifact name from the request timestamp, an optional
// custom stem and the voice: 20240101-120000-alloy.mp3.
func Filename(requestedAt time.Time, custom, voice, format string) string {
	stamp := requestedAt.UTC().Format("20060102-150405")
	if format == "" {
		format = "mp3"
	}
	part := voice
	if custom != "" {
		part = custom + "-" + voice
	}
	return fmt.Sprintf("%s-%s.%s", stamp, part, format)
}
