package models

import (
	"time"
)

const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// DBChange is one row of the change log written by database triggers.
type DBChange struct {
	ID         uint      `gorm:"primaryKey"`
	TableName  string    `gorm:"type:varchar(50);not null;index:idx_table_action"`
	RecordID   string    `gorm:"type:varchar(64);not null"`
	ActionType string    `gorm:"type:varchar(10);not null;index:idx_table_action"`
	ChangedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	Processed  bool      `gorm:"not null;default:false;index:idx_processed"`
}
