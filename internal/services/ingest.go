package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/repos"
	"github.com/codequarry/codequarry-backend/internal/types"
	"github.com/codequarry/codequarry-backend/internal/utils"
)

// IngestService discovers candidate videos for a (language, topic) pair,
// filters them for relevance, and drives transcript resolution and question
// generation for each accepted video.
//
// Run must not fail once the filter stage has produced its accepted set:
// per-video resolution failures are logged and skipped so the scheduler can
// still mark the topic fully processed.
type IngestService interface {
	Run(ctx context.Context, language string, topic string) error
}

const (
	discoverLimit = 20
	candidateCap  = 12
	acceptedCap   = 6
)

type ingestService struct {
	log            *logger.Logger
	languageRepo   repos.LanguageRepo
	topicRepo      repos.TopicRepo
	videoRepo      repos.VideoRepo
	transcriptRepo repos.TranscriptRepo
	questionRepo   repos.QuestionRepo
	search         VideoSearch
	filter         RelevanceFilter
	transcripts    TranscriptResolver
	questions      QuestionService
	workDir        string
}

func NewIngestService(
	log *logger.Logger,
	languageRepo repos.LanguageRepo,
	topicRepo repos.TopicRepo,
	videoRepo repos.VideoRepo,
	transcriptRepo repos.TranscriptRepo,
	questionRepo repos.QuestionRepo,
	search VideoSearch,
	filter RelevanceFilter,
	transcripts TranscriptResolver,
	questions QuestionService,
) IngestService {
	return &ingestService{
		log:            log.With("service", "IngestService"),
		languageRepo:   languageRepo,
		topicRepo:      topicRepo,
		videoRepo:      videoRepo,
		transcriptRepo: transcriptRepo,
		questionRepo:   questionRepo,
		search:         search,
		filter:         filter,
		transcripts:    transcripts,
		questions:      questions,
		workDir:        utils.GetEnv("MEDIA_WORK_DIR", os.TempDir(), nil),
	}
}

func (s *ingestService) Run(ctx context.Context, language string, topic string) error {
	ctx = defaultCtx(ctx)

	candidates, err := s.search.Search(ctx, language+" "+topic, discoverLimit)
	if err != nil {
		return fmt.Errorf("candidate search: %w", err)
	}
	if len(candidates) == 0 {
		s.log.Info("No candidate videos found", "language", language, "topic", topic)
		return nil
	}
	defer s.cleanupArtifacts(candidates)

	fresh, err := s.dedup(ctx, candidates)
	if err != nil {
		return err
	}
	if len(fresh) > candidateCap {
		fresh = fresh[:candidateCap]
	}

	accepted := s.filter.Filter(ctx, fresh, language, topic)
	if len(accepted) > acceptedCap {
		accepted = accepted[:acceptedCap]
	}
	s.log.Info("Filter stage complete",
		"language", language, "topic", topic,
		"candidates", len(fresh), "accepted", len(accepted))

	topicRow, err := s.resolveTopicRow(ctx, language, topic)
	if err != nil {
		return err
	}

	current, err := s.topicRepo.CountVideos(ctx, nil, topicRow.ID)
	if err != nil {
		return fmt.Errorf("count topic videos: %w", err)
	}
	if int64(len(accepted)) > current {
		if err := s.topicRepo.UpdateFields(ctx, nil, topicRow.ID, map[string]interface{}{
			"total_videos": len(accepted),
		}); err != nil {
			return fmt.Errorf("update total_videos: %w", err)
		}
	}

	// From here on errors are per-video: log, skip, keep going.
	for _, candidate := range accepted {
		if err := s.processVideo(ctx, topicRow.ID, candidate); err != nil {
			s.log.Error("Video processing failed",
				"video_id", candidate.VideoID, "title", candidate.Title, "error", err)
		}
	}
	return nil
}

// dedup drops candidates whose Video+Transcript+Question triple already
// exists. Partial state (video without transcript, transcript without
// questions) is kept so the missing pieces get another attempt.
func (s *ingestService) dedup(ctx context.Context, candidates []VideoCandidate) ([]VideoCandidate, error) {
	fresh := make([]VideoCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		videoID := candidate.VideoID
		if videoID == "" {
			videoID = ExtractVideoID(candidate.URL)
		}
		if videoID == "" {
			s.log.Warn("Dropping candidate with no video id", "title", candidate.Title)
			continue
		}
		candidate.VideoID = videoID

		videoExists, err := s.videoRepo.ExistsByVideoID(ctx, nil, videoID)
		if err != nil {
			return nil, fmt.Errorf("video existence check: %w", err)
		}
		if videoExists {
			transcriptExists, err := s.transcriptRepo.ExistsByExternalVideoID(ctx, nil, videoID)
			if err != nil {
				return nil, fmt.Errorf("transcript existence check: %w", err)
			}
			questionExists, err := s.questionRepo.ExistsByExternalVideoID(ctx, nil, videoID)
			if err != nil {
				return nil, fmt.Errorf("question existence check: %w", err)
			}
			if transcriptExists && questionExists {
				s.log.Info("Skipping fully processed video", "video_id", videoID)
				continue
			}
		}
		fresh = append(fresh, candidate)
	}
	return fresh, nil
}

func (s *ingestService) resolveTopicRow(ctx context.Context, language string, topic string) (*types.Topic, error) {
	languageRow, err := s.languageRepo.GetOrCreate(ctx, nil, language)
	if err != nil {
		return nil, fmt.Errorf("language get-or-create: %w", err)
	}
	topicRow, err := s.topicRepo.GetOrCreate(ctx, nil, languageRow.ID, topic)
	if err != nil {
		return nil, fmt.Errorf("topic get-or-create: %w", err)
	}
	return topicRow, nil
}

func (s *ingestService) processVideo(ctx context.Context, topicID uuid.UUID, candidate VideoCandidate) error {
	tags, err := encodeTags(candidate.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	video, err := s.videoRepo.GetOrCreate(ctx, nil, &types.Video{
		ID:          uuid.New(),
		VideoID:     candidate.VideoID,
		Title:       candidate.Title,
		Description: candidate.Description,
		URL:         candidate.URL,
		Tags:        tags,
		TopicID:     &topicID,
	})
	if err != nil {
		return fmt.Errorf("video get-or-create: %w", err)
	}
	// A row created earlier by transcript resolution has no owning topic yet.
	if video.TopicID == nil {
		if err := s.videoRepo.UpdateFields(ctx, nil, candidate.VideoID, map[string]interface{}{
			"topic_id": topicID,
		}); err != nil {
			return fmt.Errorf("claim video for topic: %w", err)
		}
	}

	transcript, err := s.transcripts.Resolve(ctx, candidate.URL, candidate.VideoID)
	if err != nil {
		return fmt.Errorf("transcript: %w", err)
	}

	if err := s.questions.Generate(ctx, transcript, candidate.VideoID); err != nil {
		return fmt.Errorf("questions: %w", err)
	}
	return nil
}

// cleanupArtifacts sweeps any per-video media files a failed stage may have
// left behind. The individual services remove their own files on the happy
// path.
func (s *ingestService) cleanupArtifacts(candidates []VideoCandidate) {
	for _, candidate := range candidates {
		if candidate.VideoID == "" {
			continue
		}
		for _, name := range []string{
			"full_audio_" + candidate.VideoID + ".mp3",
			"full_audio_" + candidate.VideoID + "_part1.mp3",
			"full_audio_" + candidate.VideoID + "_part2.mp3",
			"short_audio_" + candidate.VideoID + ".mp3",
		} {
			_ = os.Remove(filepath.Join(s.workDir, name))
		}
	}
}

func encodeTags(tags []string) (datatypes.JSON, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
