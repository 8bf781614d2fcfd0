package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/binuengoor/OpenSpeech/internal/config"
	"github.com/binuengoor/OpenSpeech/internal/gateway"
	"github.com/binuengoor/OpenSpeech/internal/httpapi"
	"github.com/binuengoor/OpenSpeech/internal/logstream"
	"github.com/binuengoor/OpenSpeech/internal/observability"
	"github.com/binuengoor/OpenSpeech/internal/queue"
	"github.com/binuengoor/OpenSpeech/internal/speech"
	"github.com/binuengoor/OpenSpeech/internal/stitcher"
	"github.com/binuengoor/OpenSpeech/internal/storage"
	"github.com/binuengoor/OpenSpeech/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Every log line goes to the console and, as raw JSON, to the /ws/logs
	// stream.
	logs := logstream.NewBroadcaster()
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger := zerolog.New(zerolog.MultiLevelWriter(console, logs)).With().Timestamp().Logger()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	for _, dir := range []string{cfg.DataDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", dir).Msg("creating directory")
		}
	}

	ctx := context.Background()

	var library *storage.Library
	if cfg.FileManagementEnabled {
		var meta storage.MetadataStore
		if cfg.DatabaseURL != "" {
			pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
			if err != nil {
				logger.Fatal().Err(err).Msg("connecting to postgres metadata store")
			}
			defer pg.Close()
			meta = pg
			logger.Info().Msg("artifact metadata: postgres")
		} else {
			meta = storage.NewJSONStore(filepath.Join(cfg.DataDir, "metadata.json"), logger)
			logger.Info().Msg("artifact metadata: json file")
		}
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.OutputDir).Msg("creating output directory")
		}
		library = storage.NewLibrary(cfg.OutputDir, meta, logger)
	} else {
		logger.Info().Msg("file management disabled, artifacts are not persisted")
	}

	track := tracker.New(filepath.Join(cfg.DataDir, "processing-jobs.json"), logger)
	if err := track.CleanOld(); err != nil {
		logger.Error().Err(err).Msg("purging stale tracker entries at startup")
	}

	client := gateway.NewClient(gateway.Config{
		BaseURL: cfg.TTSEndpoint,
		APIKey:  cfg.TTSAPIKey,
		Timeout: cfg.TTSTimeout,
	}, logger)

	concat := stitcher.NewFFmpeg(cfg.FFmpegPath, cfg.TempDir, logger)

	gen := speech.NewGenerator(client, concat, track, library, metrics, speech.Defaults{
		Voice:         cfg.DefaultVoice,
		Model:         cfg.DefaultModel,
		Format:        cfg.DefaultFormat,
		Speed:         cfg.DefaultSpeed,
		MaxChunkChars: cfg.MaxChunkChars,
	}, logger)

	q := queue.New(cfg.QueueInterJobDelay, logger)
	defer q.Close()

	// Count terminal job transitions for the metrics endpoint.
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			switch ev.Type {
			case queue.EventJobCompleted, queue.EventJobFailed, queue.EventJobCancelled:
				metrics.QueueJobs.WithLabelValues(string(ev.Job.Status)).Inc()
			}
		}
	}()

	api := httpapi.New(cfg, gen, q, track, library, client, logs, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info().Msg("shutdown complete")
}
