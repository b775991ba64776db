package repos

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codequarry/codequarry-backend/internal/logger"
	"github.com/codequarry/codequarry-backend/internal/types"
)

type LanguageRepo interface {
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Language, error)
	GetOrCreate(ctx context.Context, tx *gorm.DB, name string) (*types.Language, error)
}

type languageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLanguageRepo(db *gorm.DB, baseLog *logger.Logger) LanguageRepo {
	repoLog := baseLog.With("repo", "LanguageRepo")
	return &languageRepo{db: db, log: repoLog}
}

func (r *languageRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Language, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var lang types.Language
	if err := transaction.WithContext(ctx).
		Where("name = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&lang).Error; err != nil {
		return nil, err
	}
	return &lang, nil
}

func (r *languageRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, name string) (*types.Language, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	normalized := strings.ToLower(strings.TrimSpace(name))

	var lang types.Language
	err := transaction.WithContext(ctx).
		Where("name = ?", normalized).
		First(&lang).Error
	if err == nil {
		return &lang, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	lang = types.Language{ID: uuid.New(), Name: normalized}
	if err := transaction.WithContext(ctx).Create(&lang).Error; err != nil {
		return nil, err
	}
	return &lang, nil
}
