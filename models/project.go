package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ProjectStatusIdea      = "idea"
	ProjectStatusPlanning  = "planning"
	ProjectStatusExecuting = "executing"
	ProjectStatusReview    = "review"
	ProjectStatusCompleted = "completed"
)

// Project is a kanban card owned by the projects page.
type Project struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Description  *string   `gorm:"type:text" json:"description"`
	Observations *string   `gorm:"type:text" json:"observations"`
	Status       string    `gorm:"type:varchar(20);not null;default:'idea'" json:"status"`
	Priority     string    `gorm:"type:varchar(20);not null;default:'medium'" json:"priority"`
	StartDate    *string   `gorm:"type:date" json:"start_date"`
	DueDate      *string   `gorm:"type:date;index" json:"due_date"`
	Responsible  *string   `gorm:"type:varchar(255)" json:"responsible"`
	UserID       string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
