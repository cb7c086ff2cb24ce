package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushSubscription is a browser Web Push registration. A user may hold
// one row per endpoint (device/browser).
type PushSubscription struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_push_user_endpoint" json:"user_id"`
	Endpoint  string    `gorm:"type:varchar(500);not null;uniqueIndex:idx_push_user_endpoint" json:"endpoint"`
	P256dh    string    `gorm:"type:varchar(255);not null" json:"p256dh"`
	Auth      string    `gorm:"type:varchar(255);not null" json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *PushSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
