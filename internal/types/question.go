package types

import (
	"time"

	"github.com/google/uuid"
)

// Question holds the full rendered exercise set generated for one video.
// The pipeline checks for an existing row before regenerating.
type Question struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID   uuid.UUID `gorm:"type:uuid;not null;index" json:"video_id"`
	Video     *Video    `gorm:"constraint:OnDelete:CASCADE;foreignKey:VideoID;references:ID" json:"video,omitempty"`
	Questions string    `gorm:"column:questions;not null" json:"questions"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Question) TableName() string { return "question" }
