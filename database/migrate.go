package database

import (
	"fmt"

	"github.com/dataponto/dataponto-backend/models"
	"gorm.io/gorm"
)

// Models lists every table the service reads or writes.
func Models() []interface{} {
	return []interface{}{
		&models.Project{},
		&models.Appointment{},
		&models.Goal{},
		&models.Message{},
		&models.Profile{},
		&models.PushSubscription{},
		&models.DBChange{},
	}
}

// Migrate creates missing tables and columns and installs the triggers.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return ExecuteTriggers(db)
}
