package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/utils"
)

// SpeechToText turns an audio file on disk into transcribed text.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// whisperSpeech shells out to the whisper.cpp CLI. The binary writes a .txt
// sidecar next to the input when invoked with -otxt.
type whisperSpeech struct {
	log       *logger.Logger
	runner    CommandRunner
	binPath   string
	modelPath string
	language  string
	timeout   time.Duration
}

func NewWhisperSpeech(log *logger.Logger, runner CommandRunner) SpeechToText {
	return &whisperSpeech{
		log:       log.With("service", "WhisperSpeech"),
		runner:    runner,
		binPath:   utils.GetEnv("WHISPER_BIN", "whisper-cli", nil),
		modelPath: utils.GetEnv("WHISPER_MODEL", "models/ggml-base.bin", nil),
		language:  utils.GetEnv("WHISPER_LANGUAGE", "en", nil),
		timeout:   time.Duration(utils.GetEnvAsInt("WHISPER_TIMEOUT_SECONDS", 900, nil)) * time.Second,
	}
}

func (w *whisperSpeech) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx = defaultCtx(ctx)
	if audioPath == "" {
		return "", fmt.Errorf("audioPath required")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	w.log.Info("Transcribing audio", "path", audioPath)

	outPrefix := audioPath
	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-l", w.language,
		"-otxt",
		"-of", outPrefix,
	}
	out, err := w.runner.Run(ctx, w.binPath, args...)
	if err != nil {
		return "", fmt.Errorf("whisper failed: %w; out=%s", err, string(out))
	}

	txtPath := outPrefix + ".txt"
	raw, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("whisper output missing at %s: %w", txtPath, err)
	}
	_ = os.Remove(txtPath)

	w.log.Info("Transcription finished", "path", audioPath, "took", time.Since(start).String())
	return strings.TrimSpace(string(raw)), nil
}
