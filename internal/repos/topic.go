package repos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/types"
)

type TopicRepo interface {
	GetByName(ctx context.Context, tx *gorm.DB, languageID uuid.UUID, name string) (*types.Topic, error)
	// GetForUpdate reloads the topic row under a row-level lock so the
	// is_processing/is_fully_processed read-modify-write is one atomic unit.
	GetForUpdate(ctx context.Context, tx *gorm.DB, topicID uuid.UUID) (*types.Topic, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, languageID uuid.UUID, name string) (*types.Topic, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, topicID uuid.UUID, fields map[string]interface{}) error
	// ClearStaleProcessing resets is_processing left over from a prior crash.
	ClearStaleProcessing(ctx context.Context, tx *gorm.DB) error
	CountVideos(ctx context.Context, tx *gorm.DB, topicID uuid.UUID) (int64, error)
}

type topicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicRepo(db *gorm.DB, baseLog *logger.Logger) TopicRepo {
	repoLog := baseLog.With("repo", "TopicRepo")
	return &topicRepo{db: db, log: repoLog}
}

func (r *topicRepo) GetByName(ctx context.Context, tx *gorm.DB, languageID uuid.UUID, name string) (*types.Topic, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var topic types.Topic
	if err := transaction.WithContext(ctx).
		Where("language_id = ? AND name = ?", languageID, strings.ToLower(strings.TrimSpace(name))).
		First(&topic).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *topicRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, topicID uuid.UUID) (*types.Topic, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var topic types.Topic
	if err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", topicID).
		First(&topic).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *topicRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, languageID uuid.UUID, name string) (*types.Topic, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	normalized := strings.ToLower(strings.TrimSpace(name))

	var topic types.Topic
	err := transaction.WithContext(ctx).
		Where("language_id = ? AND name = ?", languageID, normalized).
		First(&topic).Error
	if err == nil {
		return &topic, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	topic = types.Topic{ID: uuid.New(), LanguageID: languageID, Name: normalized}
	if err := transaction.WithContext(ctx).Create(&topic).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *topicRepo) UpdateFields(ctx context.Context, tx *gorm.DB, topicID uuid.UUID, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	fields["updated_at"] = time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.Topic{}).
		Where("id = ?", topicID).
		Updates(fields).Error
}

func (r *topicRepo) ClearStaleProcessing(ctx context.Context, tx *gorm.DB) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Topic{}).
		Where("is_processing = ?", true).
		Update("is_processing", false).Error
}

func (r *topicRepo) CountVideos(ctx context.Context, tx *gorm.DB, topicID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Video{}).
		Where("topic_id = ?", topicID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
