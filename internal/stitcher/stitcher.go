// Package stitcher combines per-chunk audio buffers into one artifact by
// driving ffmpeg's concat demuxer with stream copy, so no re-encoding happens.
package stitcher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FFmpeg concatenates audio buffers through an ffmpeg subprocess. Inputs are
// materialized as uuid-named temp files so concurrent stitches never collide.
type FFmpeg struct {
	binary  string
	tempDir string
	log     zerolog.Logger
}

func NewFFmpeg(binary, tempDir string, log zerolog.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpeg{binary: binary, tempDir: tempDir, log: log}
}

// Stitch writes each buffer to a temp file, builds a concat manifest, runs
// ffmpeg with stream copy, and returns the combined output. Temp files are
// removed on success and failure alike; cleanup problems are swallowed so
// they never mask the primary error.
func (f *FFmpeg) Stitch(ctx context.Context, buffers [][]byte, format string) ([]byte, error) {
	if len(buffers) == 0 {
		return nil, fmt.Errorf("audio stitching failed: no buffers to combine")
	}
	if format == "" {
		format = "mp3"
	}

	if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("audio stitching failed: %w", err)
	}

	session := uuid.NewString()
	listFile := filepath.Join(f.tempDir, session+"_list.txt")
	outputFile := filepath.Join(f.tempDir, fmt.Sprintf("%s_output.%s", session, format))

	var tempFiles []string
	defer func() {
		f.cleanup(append(tempFiles, listFile, outputFile))
	}()

	var manifest strings.Builder
	for i, buf := range buffers {
		chunkFile := filepath.Join(f.tempDir, fmt.Sprintf("%s_chunk_%d.%s", session, i, format))
		if err := os.WriteFile(chunkFile, buf, 0o644); err != nil {
			return nil, fmt.Errorf("audio stitching failed: %w", err)
		}
		tempFiles = append(tempFiles, chunkFile)
		fmt.Fprintf(&manifest, "file '%s'\n", chunkFile)
	}

	if err := os.WriteFile(listFile, []byte(manifest.String()), 0o644); err != nil {
		return nil, fmt.Errorf("audio stitching failed: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.binary,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		outputFile,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		f.log.Error().Err(err).Str("stderr", lastLine(stderr.String())).Msg("ffmpeg concat failed")
		return nil, fmt.Errorf("audio stitching failed: %v", err)
	}

	combined, err := os.ReadFile(outputFile)
	if err != nil {
		return nil, fmt.Errorf("audio stitching failed: %w", err)
	}
	return combined, nil
}

func (f *FFmpeg) cleanup(files []string) {
	for _, file := range files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			f.log.Debug().Err(err).Str("file", file).Msg("removing stitch temp file")
		}
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
