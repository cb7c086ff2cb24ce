package config

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the entity store selected by DB_DRIVER.
func InitDB(conf Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch conf.DBDriver {
	case "postgres", "":
		dialector = postgres.Open(conf.DatabaseURL)
	case "mysql":
		dialector = mysql.Open(conf.DatabaseURL)
	case "sqlite":
		dialector = sqlite.Open(conf.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", conf.DBDriver)
	}

	logLevel := logger.Warn
	if !conf.IsProduction() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", conf.DBDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if conf.DBDriver == "sqlite" {
		// sqlite serializes writers anyway
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
