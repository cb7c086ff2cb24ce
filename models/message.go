package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a row of the shared chat log.
type Message struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	SenderID  string    `gorm:"type:varchar(36);not null;index" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
