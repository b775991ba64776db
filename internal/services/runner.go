package services

import (
	"context"
	"os/exec"
)

// CommandRunner abstracts external binary execution (yt-dlp, ffmpeg, whisper)
// so the services that shell out can be tested without the binaries.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func NewExecRunner() CommandRunner {
	return &execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func defaultCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
