package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/types"
)

type QuestionRepo interface {
	ExistsByExternalVideoID(ctx context.Context, tx *gorm.DB, videoID string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, question *types.Question) (*types.Question, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	repoLog := baseLog.With("repo", "QuestionRepo")
	return &questionRepo{db: db, log: repoLog}
}

func (r *questionRepo) ExistsByExternalVideoID(ctx context.Context, tx *gorm.DB, videoID string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Question{}).
		Joins("JOIN video ON video.id = question.video_id").
		Where("video.video_id = ?", videoID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *questionRepo) Create(ctx context.Context, tx *gorm.DB, question *types.Question) (*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(question).Error; err != nil {
		return nil, err
	}
	return question, nil
}
