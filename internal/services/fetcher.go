package services

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/utils"
)

// MediaFetcher downloads the audio track of a video to a local mp3 file,
// rotating through cookie files and download strategies until one produces
// the expected output.
type MediaFetcher interface {
	DownloadAudio(ctx context.Context, videoURL string, outPath string) error
}

type mediaFetcher struct {
	log       *logger.Logger
	runner    CommandRunner
	ytdlpPath string
	cookieDir string
	timeout   time.Duration
	shuffle   func([]string)
}

func NewMediaFetcher(log *logger.Logger, runner CommandRunner) MediaFetcher {
	return &mediaFetcher{
		log:       log.With("service", "MediaFetcher"),
		runner:    runner,
		ytdlpPath: utils.GetEnv("YTDLP_BIN", "yt-dlp", nil),
		cookieDir: utils.GetEnv("YTDLP_COOKIES_DIR", "cookies", nil),
		timeout:   time.Duration(utils.GetEnvAsInt("YTDLP_TIMEOUT_SECONDS", 600, nil)) * time.Second,
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
	}
}

// DownloadAudio tries every cookie file (shuffled, with a final no-cookie
// attempt) and, per credential, an audio-only extraction followed by a
// generic muxed extraction. The first attempt that leaves an output file at
// outPath wins.
func (f *mediaFetcher) DownloadAudio(ctx context.Context, videoURL string, outPath string) error {
	ctx = defaultCtx(ctx)
	if videoURL == "" {
		return fmt.Errorf("videoURL required")
	}
	if outPath == "" {
		return fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("mkdir outPath dir: %w", err)
	}

	cookies := f.listCookieFiles()
	f.shuffle(cookies)
	cookies = append(cookies, "") // no-cookie fallback, always last

	var lastErr error
	for _, cookie := range cookies {
		for _, audioOnly := range []bool{true, false} {
			// Stale output would make the existence check lie.
			if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove stale output: %w", err)
			}

			attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
			out, err := f.runner.Run(attemptCtx, f.ytdlpPath, f.buildArgs(videoURL, outPath, cookie, audioOnly)...)
			cancel()

			if err != nil {
				lastErr = fmt.Errorf("yt-dlp failed: %w; out=%s", err, truncate(string(out), 500))
				f.log.Warn("Download attempt failed",
					"url", videoURL,
					"cookie", filepath.Base(cookie),
					"audio_only", audioOnly,
					"error", err,
				)
				continue
			}
			if fileExists(outPath) {
				return nil
			}
			lastErr = fmt.Errorf("yt-dlp reported success but output missing at %s", outPath)
			f.log.Warn("Download produced no output file",
				"url", videoURL,
				"cookie", filepath.Base(cookie),
				"audio_only", audioOnly,
			)
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no download strategy available")
	}
	return fmt.Errorf("all download strategies exhausted for %s: %w", videoURL, lastErr)
}

func (f *mediaFetcher) buildArgs(videoURL, outPath, cookie string, audioOnly bool) []string {
	// yt-dlp appends the real extension itself; the mp3 postprocessor then
	// produces outPath.
	template := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".%(ext)s"

	args := []string{
		"--ignore-config",
		"--no-playlist",
		"--no-warnings",
		"--quiet",
		"--socket-timeout", "30",
		"--retries", "5",
		"--extractor-args", "youtube:player_client=android",
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "192K",
		"-o", template,
	}
	if audioOnly {
		args = append(args, "-f", "bestaudio/best")
	}
	if cookie != "" {
		args = append(args, "--cookies", cookie)
	}
	args = append(args, videoURL)
	return args
}

func (f *mediaFetcher) listCookieFiles() []string {
	entries, err := os.ReadDir(f.cookieDir)
	if err != nil {
		return nil
	}
	var cookies []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) != ".txt" {
			continue
		}
		cookies = append(cookies, filepath.Join(f.cookieDir, e.Name()))
	}
	return cookies
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
