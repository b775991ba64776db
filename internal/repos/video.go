package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/types"
)

type VideoRepo interface {
	GetByVideoID(ctx context.Context, tx *gorm.DB, videoID string) (*types.Video, error)
	ExistsByVideoID(ctx context.Context, tx *gorm.DB, videoID string) (bool, error)
	// GetOrCreate returns the existing row for video.VideoID or creates one
	// from the provided fields. The external video id is the identity; other
	// fields are defaults applied only on creation.
	GetOrCreate(ctx context.Context, tx *gorm.DB, video *types.Video) (*types.Video, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, videoID string, fields map[string]interface{}) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	repoLog := baseLog.With("repo", "VideoRepo")
	return &videoRepo{db: db, log: repoLog}
}

func (r *videoRepo) GetByVideoID(ctx context.Context, tx *gorm.DB, videoID string) (*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var video types.Video
	if err := transaction.WithContext(ctx).
		Where("video_id = ?", videoID).
		First(&video).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

func (r *videoRepo) ExistsByVideoID(ctx context.Context, tx *gorm.DB, videoID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Video{}).
		Where("video_id = ?", videoID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *videoRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, video *types.Video) (*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var existing types.Video
	err := transaction.WithContext(ctx).
		Where("video_id = ?", video.VideoID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := transaction.WithContext(ctx).Create(video).Error; err != nil {
		return nil, err
	}
	return video, nil
}

func (r *videoRepo) UpdateFields(ctx context.Context, tx *gorm.DB, videoID string, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Video{}).
		Where("video_id = ?", videoID).
		Updates(fields).Error
}
