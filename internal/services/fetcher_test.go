package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestFetcher(t *testing.T, runner CommandRunner, cookieDir string) *mediaFetcher {
	t.Helper()
	return &mediaFetcher{
		log:       testLog(),
		runner:    runner,
		ytdlpPath: "yt-dlp",
		cookieDir: cookieDir,
		timeout:   5 * time.Second,
		shuffle:   func([]string) {}, // keep order deterministic
	}
}

func writeCookies(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("# cookies"), 0o644); err != nil {
			t.Fatalf("write cookie: %v", err)
		}
	}
	return dir
}

func hasArg(args []string, value string) bool {
	for _, a := range args {
		if a == value {
			return true
		}
	}
	return false
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestDownloadAudioFirstAttemptWins(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "audio.mp3")
	runner := &fakeRunner{respond: func(call int, name string, args []string) ([]byte, error) {
		return nil, os.WriteFile(outPath, []byte("mp3"), 0o644)
	}}
	f := newTestFetcher(t, runner, writeCookies(t, "a.txt"))

	if err := f.DownloadAudio(context.Background(), "https://www.youtube.com/watch?v=v1", outPath); err != nil {
		t.Fatalf("DownloadAudio: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("runner called %d times, want 1", len(runner.calls))
	}

	args := runner.calls[0].args
	if !hasArg(args, "-x") || argValue(args, "--audio-format") != "mp3" || argValue(args, "--audio-quality") != "192K" {
		t.Errorf("mp3 extraction args missing: %v", args)
	}
	if argValue(args, "-f") != "bestaudio/best" {
		t.Errorf("first attempt must be audio-only, args: %v", args)
	}
	if argValue(args, "--cookies") == "" {
		t.Errorf("cookie attempt expected first, args: %v", args)
	}
}

func TestDownloadAudioFallsBackToMuxed(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "audio.mp3")
	runner := &fakeRunner{respond: func(call int, name string, args []string) ([]byte, error) {
		if call == 0 {
			return []byte("no formats"), nil // succeeds but writes nothing
		}
		return nil, os.WriteFile(outPath, []byte("mp3"), 0o644)
	}}
	f := newTestFetcher(t, runner, writeCookies(t, "a.txt"))

	if err := f.DownloadAudio(context.Background(), "https://www.youtube.com/watch?v=v1", outPath); err != nil {
		t.Fatalf("DownloadAudio: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("runner called %d times, want 2", len(runner.calls))
	}
	if argValue(runner.calls[1].args, "-f") != "" {
		t.Errorf("second attempt must be the generic strategy, args: %v", runner.calls[1].args)
	}
}

func TestDownloadAudioNoCookieAttemptIsLast(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "audio.mp3")
	runner := &fakeRunner{} // never produces the file
	f := newTestFetcher(t, runner, writeCookies(t, "a.txt", "b.txt"))

	err := f.DownloadAudio(context.Background(), "https://www.youtube.com/watch?v=v1", outPath)
	if err == nil {
		t.Fatal("expected error when every strategy fails")
	}

	// 2 cookies + the no-cookie fallback, two strategies each.
	if len(runner.calls) != 6 {
		t.Fatalf("runner called %d times, want 6", len(runner.calls))
	}
	for i, call := range runner.calls[:4] {
		if argValue(call.args, "--cookies") == "" {
			t.Errorf("call %d should carry a cookie file: %v", i, call.args)
		}
	}
	for i, call := range runner.calls[4:] {
		if hasArg(call.args, "--cookies") {
			t.Errorf("final attempts must be cookie-less, call %d: %v", 4+i, call.args)
		}
	}
}

func TestDownloadAudioRemovesStaleOutput(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "audio.mp3")
	if err := os.WriteFile(outPath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	runner := &fakeRunner{} // never produces the file
	f := newTestFetcher(t, runner, writeCookies(t))

	if err := f.DownloadAudio(context.Background(), "https://www.youtube.com/watch?v=v1", outPath); err == nil {
		t.Fatal("stale file must not count as a successful download")
	}
	if fileExists(outPath) {
		t.Error("stale output must be removed before attempts")
	}
}

func TestDownloadAudioValidatesInput(t *testing.T) {
	f := newTestFetcher(t, &fakeRunner{}, t.TempDir())

	if err := f.DownloadAudio(context.Background(), "", "out.mp3"); err == nil {
		t.Error("empty URL must be rejected")
	}
	if err := f.DownloadAudio(context.Background(), "https://example.com", ""); err == nil {
		t.Error("empty output path must be rejected")
	}
}
