package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Video rows are created the first time the filter accepts a candidate, or
// when a transcript is resolved for a video that has no row yet (in that case
// TopicID stays nil until the filter claims it).
type Video struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID     string         `gorm:"column:video_id;not null;uniqueIndex" json:"video_id"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	URL         string         `gorm:"column:url" json:"url"`
	Tags        datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`
	TopicID     *uuid.UUID     `gorm:"type:uuid;index" json:"topic_id,omitempty"`
	Topic       *Topic         `gorm:"constraint:OnDelete:CASCADE;foreignKey:TopicID;references:ID" json:"topic,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Video) TableName() string { return "video" }
