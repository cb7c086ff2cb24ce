package database

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dataponto/dataponto-backend/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestMigrateRecordsMessageInserts(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	msg := models.Message{SenderID: "b1c1f0a4-59c6-4d59-9a5e-08a4c1f0d111", Content: "oi"}
	require.NoError(t, db.Create(&msg).Error)

	var changes []models.DBChange
	require.NoError(t, db.Find(&changes).Error)
	require.Len(t, changes, 1)
	assert.Equal(t, "messages", changes[0].TableName)
	assert.Equal(t, msg.ID, changes[0].RecordID)
	assert.Equal(t, models.ChangeInsert, changes[0].ActionType)
	assert.False(t, changes[0].Processed)
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	require.NoError(t, db.Create(&models.Message{SenderID: "x", Content: "a"}).Error)
	var count int64
	db.Model(&models.DBChange{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUnsetStartDateIsStoredAsNull(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))

	due := "2026-11-01"
	require.NoError(t, db.Create(&models.Project{Name: "Sem início", DueDate: &due, UserID: "u1"}).Error)
	require.NoError(t, db.Create(&models.Goal{Title: "Correr 10k", DueDate: due, CreatedBy: "u1"}).Error)

	var projects, goals int64
	require.NoError(t, db.Model(&models.Project{}).Where("start_date IS NULL").Count(&projects).Error)
	require.NoError(t, db.Model(&models.Goal{}).Where("start_date IS NULL").Count(&goals).Error)
	assert.Equal(t, int64(1), projects)
	assert.Equal(t, int64(1), goals)
}
