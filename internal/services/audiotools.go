package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/utils"
)

// AudioTools is the ffmpeg/ffprobe glue for trimming relevance-check clips
// and splitting full downloads for transcription.
type AudioTools interface {
	Trim(ctx context.Context, inPath, outPath string, seconds int) error
	// SplitInTwo cuts the file into two roughly equal-duration halves and
	// returns their paths.
	SplitInTwo(ctx context.Context, inPath string) ([]string, error)
}

type audioTools struct {
	log         *logger.Logger
	runner      CommandRunner
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

func NewAudioTools(log *logger.Logger, runner CommandRunner) AudioTools {
	return &audioTools{
		log:         log.With("service", "AudioTools"),
		runner:      runner,
		ffmpegPath:  utils.GetEnv("FFMPEG_BIN", "ffmpeg", nil),
		ffprobePath: utils.GetEnv("FFPROBE_BIN", "ffprobe", nil),
		timeout:     10 * time.Minute,
	}
}

func (a *audioTools) Trim(ctx context.Context, inPath, outPath string, seconds int) error {
	ctx = defaultCtx(ctx)
	if seconds <= 0 {
		return fmt.Errorf("seconds must be positive")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.runner.Run(ctx, a.ffmpegPath,
		"-y",
		"-i", inPath,
		"-t", strconv.Itoa(seconds),
		outPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg trim failed: %w; out=%s", err, truncate(string(out), 500))
	}
	if !fileExists(outPath) {
		return fmt.Errorf("trim output missing at %s", outPath)
	}
	return nil
}

func (a *audioTools) SplitInTwo(ctx context.Context, inPath string) ([]string, error) {
	ctx = defaultCtx(ctx)

	duration, err := a.probeDuration(ctx, inPath)
	if err != nil {
		return nil, err
	}
	half := duration / 2

	ext := filepath.Ext(inPath)
	base := strings.TrimSuffix(inPath, ext)
	part1 := base + "_part1" + ext
	part2 := base + "_part2" + ext

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.runner.Run(ctx, a.ffmpegPath,
		"-y",
		"-i", inPath,
		"-t", formatSeconds(half),
		"-c", "copy",
		part1,
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg split part1 failed: %w; out=%s", err, truncate(string(out), 500))
	}

	out, err = a.runner.Run(ctx, a.ffmpegPath,
		"-y",
		"-i", inPath,
		"-ss", formatSeconds(half),
		"-c", "copy",
		part2,
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg split part2 failed: %w; out=%s", err, truncate(string(out), 500))
	}

	for _, p := range []string{part1, part2} {
		if !fileExists(p) {
			return nil, fmt.Errorf("split output missing at %s", p)
		}
	}
	a.log.Debug("Split audio", "in", inPath, "duration_sec", duration, "half_sec", half)
	return []string{part1, part2}, nil
}

func (a *audioTools) probeDuration(ctx context.Context, inPath string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := a.runner.Run(ctx, a.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w; out=%s", err, truncate(string(out), 500))
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration parse: %w", err)
	}
	return duration, nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
