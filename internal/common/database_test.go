package common

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *Database {
	db, err := gorm.Open(sqlite.Open(":memory:"), GormConfig(logger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	database := &Database{DB: db}
	require.NoError(t, database.Migrate())
	return database
}

func TestMigrateCreatesTables(t *testing.T) {
	db := setupTestDB(t)

	for _, model := range Models() {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.NoError(t, db.Ping())
}

func TestIsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)

	ns := &types.PackageNamespace{
		Name:        "dup-name",
		Description: "first namespace",
		AuthorID:    uuid.New(),
		AuthorEmail: "a@example.com",
		Status:      types.StatusPending,
	}
	require.NoError(t, db.Create(ns).Error)

	dup := &types.PackageNamespace{
		Name:        "dup-name",
		Description: "second namespace",
		AuthorID:    uuid.New(),
		AuthorEmail: "b@example.com",
		Status:      types.StatusPending,
	}
	err := db.Create(dup).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection reset")))
}

func TestVersionUniquePerNamespace(t *testing.T) {
	db := setupTestDB(t)
	nsID := uuid.New()

	require.NoError(t, db.Create(&types.PackageVersion{PackageNamespaceID: nsID, Version: "1.0.0", ScanStatus: types.ScanClean}).Error)
	require.NoError(t, db.Create(&types.PackageVersion{PackageNamespaceID: uuid.New(), Version: "1.0.0", ScanStatus: types.ScanClean}).Error)

	err := db.Create(&types.PackageVersion{PackageNamespaceID: nsID, Version: "1.0.0", ScanStatus: types.ScanClean}).Error
	assert.True(t, IsUniqueViolation(err))
}

func TestNoopCache(t *testing.T) {
	var cache CacheStore = NoopCache{}
	ctx := context.Background()

	assert.NoError(t, cache.Set(ctx, "k", "v", 0))
	var out string
	assert.ErrorIs(t, cache.Get(ctx, "k", &out), ErrCacheMiss)
	assert.NoError(t, cache.Delete(ctx, "k"))
}
