package common

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lgulliver/jarhub/pkg/config"
	"github.com/lgulliver/jarhub/pkg/types"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM database connection
type Database struct {
	*gorm.DB
}

// GormConfig returns the gorm settings shared by the service and its tests.
// TranslateError lets unique constraint violations surface as gorm.ErrDuplicatedKey.
func GormConfig(logLevel logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger:                                   NewGormLogger(logLevel),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  utcNow,
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	dsn := cfg.DatabaseURL()

	db, err := gorm.Open(postgres.Open(dsn), GormConfig(logger.Warn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Models lists every persisted registry model
func Models() []interface{} {
	return []interface{}{
		&types.Profile{},
		&types.PackageNamespace{},
		&types.PackageVersion{},
		&types.RoleAuditEntry{},
		&types.DownloadEvent{},
	}
}

// Migrate runs database migrations
func (db *Database) Migrate() error {
	return db.AutoMigrate(Models()...)
}

// Ping checks that the database is reachable
func (db *Database) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsUniqueViolation reports whether err was caused by a unique constraint
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
