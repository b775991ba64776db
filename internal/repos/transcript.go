package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/types"
)

type TranscriptRepo interface {
	// GetByExternalVideoID looks a transcript up by the external video id
	// (the id embedded in the video URL, not the row uuid).
	GetByExternalVideoID(ctx context.Context, tx *gorm.DB, videoID string) (*types.Transcript, error)
	ExistsByExternalVideoID(ctx context.Context, tx *gorm.DB, videoID string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, transcript *types.Transcript) (*types.Transcript, error)
}

type transcriptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTranscriptRepo(db *gorm.DB, baseLog *logger.Logger) TranscriptRepo {
	repoLog := baseLog.With("repo", "TranscriptRepo")
	return &transcriptRepo{db: db, log: repoLog}
}

func (r *transcriptRepo) GetByExternalVideoID(ctx context.Context, tx *gorm.DB, videoID string) (*types.Transcript, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var transcript types.Transcript
	if err := transaction.WithContext(ctx).
		Joins("JOIN video ON video.id = transcript.video_id").
		Where("video.video_id = ?", videoID).
		First(&transcript).Error; err != nil {
		return nil, err
	}
	return &transcript, nil
}

func (r *transcriptRepo) ExistsByExternalVideoID(ctx context.Context, tx *gorm.DB, videoID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Transcript{}).
		Joins("JOIN video ON video.id = transcript.video_id").
		Where("video.video_id = ?", videoID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *transcriptRepo) Create(ctx context.Context, tx *gorm.DB, transcript *types.Transcript) (*types.Transcript, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(transcript).Error; err != nil {
		return nil, err
	}
	return transcript, nil
}
