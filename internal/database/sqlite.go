package database

import (
	"errors"

	"github.com/MarcoPoloResearchLab/pulse/internal/rooms"
	"github.com/MarcoPoloResearchLab/pulse/internal/sessions"
	"github.com/MarcoPoloResearchLab/pulse/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var errMissingDatabasePath = errors.New("database path is required")

// OpenSQLite establishes a SQLite connection, migrates the schema and applies pending data migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, errMissingDatabasePath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("path", path))
	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.Identity{},
		&users.Profile{},
		&sessions.StudySession{},
		&rooms.Room{},
		&rooms.Membership{},
		&migrationRecord{},
	)
}
