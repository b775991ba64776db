package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestAudioTools(runner CommandRunner) *audioTools {
	return &audioTools{
		log:         testLog(),
		runner:      runner,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		timeout:     5 * time.Second,
	}
}

func TestTrimProducesOutput(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "clip.mp3")
	runner := &fakeRunner{respond: func(call int, name string, args []string) ([]byte, error) {
		return nil, os.WriteFile(outPath, []byte("clip"), 0o644)
	}}
	a := newTestAudioTools(runner)

	if err := a.Trim(context.Background(), "in.mp3", outPath, 300); err != nil {
		t.Fatalf("Trim: %v", err)
	}

	args := runner.calls[0].args
	if argValue(args, "-t") != "300" {
		t.Errorf("trim duration missing, args: %v", args)
	}
}

func TestTrimRejectsNonPositiveDuration(t *testing.T) {
	a := newTestAudioTools(&fakeRunner{})
	if err := a.Trim(context.Background(), "in.mp3", "out.mp3", 0); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestTrimFailsWhenOutputMissing(t *testing.T) {
	a := newTestAudioTools(&fakeRunner{}) // command "succeeds" but writes nothing
	if err := a.Trim(context.Background(), "in.mp3", filepath.Join(t.TempDir(), "clip.mp3"), 60); err == nil {
		t.Fatal("expected error when ffmpeg produces no file")
	}
}

func TestSplitInTwoHalvesAtProbedMidpoint(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "full.mp3")

	runner := &fakeRunner{}
	runner.respond = func(call int, name string, args []string) ([]byte, error) {
		if name == "ffprobe" {
			return []byte("600.0\n"), nil
		}
		// The output path is the final argument.
		return nil, os.WriteFile(args[len(args)-1], []byte("half"), 0o644)
	}
	a := newTestAudioTools(runner)

	parts, err := a.SplitInTwo(context.Background(), inPath)
	if err != nil {
		t.Fatalf("SplitInTwo: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[0] != filepath.Join(dir, "full_part1.mp3") || parts[1] != filepath.Join(dir, "full_part2.mp3") {
		t.Errorf("unexpected part paths: %v", parts)
	}

	// Call 1 cuts the first half, call 2 seeks to the midpoint.
	if argValue(runner.calls[1].args, "-t") != "300.000" {
		t.Errorf("first half args: %v", runner.calls[1].args)
	}
	if argValue(runner.calls[2].args, "-ss") != "300.000" {
		t.Errorf("second half args: %v", runner.calls[2].args)
	}
}

func TestSplitInTwoProbeFailure(t *testing.T) {
	runner := &fakeRunner{respond: func(call int, name string, args []string) ([]byte, error) {
		return []byte("not a number"), nil
	}}
	a := newTestAudioTools(runner)

	if _, err := a.SplitInTwo(context.Background(), "in.mp3"); err == nil {
		t.Fatal("expected error when ffprobe output is unparsable")
	}
}
