package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const GoalStatusCompleted = "completed"

type Goal struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description *string   `gorm:"type:text" json:"description"`
	StartDate   *string   `gorm:"type:date" json:"start_date"`
	DueDate     string    `gorm:"type:date;not null" json:"due_date"`
	Status      string    `gorm:"type:varchar(20);not null;default:'in_progress'" json:"status"`
	Progress    int       `gorm:"not null;default:0" json:"progress"`
	CreatedBy   string    `gorm:"type:varchar(36);not null;index" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}
