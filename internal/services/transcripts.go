package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/repos"
	"github.com/codequarry/codequarry-backend/internal/types"
	"github.com/codequarry/codequarry-backend/internal/utils"
)

// TranscriptResolver produces transcript text for a video, cheapest source
// first: persisted row, then hosted captions, then a full download transcribed
// locally in two halves.
type TranscriptResolver interface {
	Resolve(ctx context.Context, videoURL string, videoID string) (string, error)
}

type transcriptResolver struct {
	log            *logger.Logger
	transcriptRepo repos.TranscriptRepo
	videoRepo      repos.VideoRepo
	captions       CaptionFetcher
	fetcher        MediaFetcher
	audio          AudioTools
	speech         SpeechToText
	workDir        string
}

func NewTranscriptResolver(
	log *logger.Logger,
	transcriptRepo repos.TranscriptRepo,
	videoRepo repos.VideoRepo,
	captions CaptionFetcher,
	fetcher MediaFetcher,
	audio AudioTools,
	speech SpeechToText,
) TranscriptResolver {
	return &transcriptResolver{
		log:            log.With("service", "TranscriptResolver"),
		transcriptRepo: transcriptRepo,
		videoRepo:      videoRepo,
		captions:       captions,
		fetcher:        fetcher,
		audio:          audio,
		speech:         speech,
		workDir:        utils.GetEnv("MEDIA_WORK_DIR", os.TempDir(), nil),
	}
}

func (t *transcriptResolver) Resolve(ctx context.Context, videoURL string, videoID string) (string, error) {
	ctx = defaultCtx(ctx)
	if videoID == "" {
		return "", fmt.Errorf("videoID required")
	}

	existing, err := t.transcriptRepo.GetByExternalVideoID(ctx, nil, videoID)
	if err == nil {
		t.log.Info("Transcript already persisted", "video_id", videoID)
		return existing.Content, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("transcript lookup: %w", err)
	}

	text, capErr := t.captions.FetchCaptions(ctx, videoID)
	if capErr != nil || strings.TrimSpace(text) == "" {
		t.log.Info("Captions unavailable, falling back to local transcription",
			"video_id", videoID, "error", capErr)
		text, err = t.transcribeLocally(ctx, videoURL, videoID)
		if err != nil {
			return "", fmt.Errorf("transcript resolution failed for %s (captions: %v): %w", videoID, capErr, err)
		}
	}

	if err := t.persist(ctx, videoURL, videoID, text); err != nil {
		return "", err
	}
	return text, nil
}

func (t *transcriptResolver) transcribeLocally(ctx context.Context, videoURL string, videoID string) (string, error) {
	audioPath := filepath.Join(t.workDir, "full_audio_"+videoID+".mp3")
	defer os.Remove(audioPath)

	if err := t.fetcher.DownloadAudio(ctx, videoURL, audioPath); err != nil {
		return "", fmt.Errorf("audio download: %w", err)
	}

	segments, err := t.audio.SplitInTwo(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("audio split: %w", err)
	}
	defer func() {
		for _, seg := range segments {
			os.Remove(seg)
		}
	}()

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		text, err := t.speech.Transcribe(ctx, seg)
		if err != nil {
			return "", fmt.Errorf("transcribe %s: %w", filepath.Base(seg), err)
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("local transcription produced no text for %s", videoID)
	}
	return strings.Join(parts, " "), nil
}

func (t *transcriptResolver) persist(ctx context.Context, videoURL string, videoID string, content string) error {
	video, err := t.videoRepo.GetOrCreate(ctx, nil, &types.Video{
		ID:      uuid.New(),
		VideoID: videoID,
		Title:   "Unknown",
		URL:     videoURL,
	})
	if err != nil {
		return fmt.Errorf("video get-or-create: %w", err)
	}

	if _, err := t.transcriptRepo.Create(ctx, nil, &types.Transcript{
		ID:      uuid.New(),
		VideoID: video.ID,
		Content: content,
	}); err != nil {
		return fmt.Errorf("transcript create: %w", err)
	}
	t.log.Info("Transcript persisted", "video_id", videoID, "chars", len(content))
	return nil
}
