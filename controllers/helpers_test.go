package controllers_test

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dataponto/dataponto-backend/database"
	"github.com/dataponto/dataponto-backend/middlewares"
	"github.com/dataponto/dataponto-backend/utils"
)

const (
	viewerID = "0b9f6a52-8c1e-4d3a-9f7b-2e6c4a1d5b70"
	otherID  = "7c2d9e14-3a5b-4f6c-8d7e-1a2b3c4d5e6f"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

// asViewer stands in for AuthMiddleware.
func asViewer(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middlewares.ContextUserID, userID)
		c.Next()
	}
}
