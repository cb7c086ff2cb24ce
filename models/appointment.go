package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultReminderMinutes applies when an appointment asks for a reminder
// without a usable lead time.
const DefaultReminderMinutes = 30

// Appointment is an agenda entry.
type Appointment struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	Description     *string   `gorm:"type:text" json:"description"`
	Location        *string   `gorm:"type:varchar(255)" json:"location"`
	Notes           *string   `gorm:"type:text" json:"notes"`
	AppointmentDate string    `gorm:"type:date;not null;index" json:"appointment_date"`
	StartTime       string    `gorm:"type:time;not null" json:"start_time"`
	EndTime         *string   `gorm:"type:time" json:"end_time"`
	DurationMinutes *int      `json:"duration_minutes"`
	ReminderMinutes *int      `json:"reminder_minutes"`
	UserID          string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ReminderLead is the lead time in minutes; zero falls back to the default.
func (a Appointment) ReminderLead() int {
	if a.ReminderMinutes == nil || *a.ReminderMinutes <= 0 {
		return DefaultReminderMinutes
	}
	return *a.ReminderMinutes
}
