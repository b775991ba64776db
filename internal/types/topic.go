package types

import (
	"time"

	"github.com/google/uuid"
)

// Topic is the unit of pipeline work: a learning subject scoped to one
// programming language. IsFullyProcessed is set exactly once, after the
// relevance filter has produced its final accepted set, and never regresses.
type Topic struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LanguageID       uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_topic_language_name" json:"language_id"`
	Language         *Language `gorm:"constraint:OnDelete:CASCADE;foreignKey:LanguageID;references:ID" json:"language,omitempty"`
	Name             string    `gorm:"column:name;not null;uniqueIndex:idx_topic_language_name" json:"name"`
	IsProcessing     bool      `gorm:"column:is_processing;not null;default:false" json:"is_processing"`
	IsFullyProcessed bool      `gorm:"column:is_fully_processed;not null;default:false" json:"is_fully_processed"`
	TotalVideos      int       `gorm:"column:total_videos;not null;default:0" json:"total_videos"`
	CreatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Topic) TableName() string { return "topic" }
