package db

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"workflowai/internal/models"
	"workflowai/internal/store"
	"workflowai/internal/store/gormstore"
	"workflowai/internal/store/memstore"
)

// MemoryDSN selects the in-process store instead of PostgreSQL.
const MemoryDSN = "memory://"

// Connect establishes a PostgreSQL backed GORM session.
func Connect(ctx context.Context, dsn string) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return database, nil
}

// Close releases the underlying sql.DB resources for the provided GORM handle.
func Close(database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates the schema for the persistent models.
func Migrate(ctx context.Context, database *gorm.DB) error {
	return database.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Workflow{},
		&models.ExecutionLog{},
		&models.Template{},
		&models.OAuthState{},
	)
}

// Open returns a migrated store for dsn plus a function releasing it.
func Open(ctx context.Context, dsn string, lg *zap.SugaredLogger) (store.Store, func() error, error) {
	if dsn == MemoryDSN {
		lg.Warnw("using in-memory store; data is lost on restart")
		return memstore.New(), func() error { return nil }, nil
	}
	database, err := Connect(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := Migrate(ctx, database); err != nil {
		_ = Close(database)
		return nil, nil, err
	}
	return gormstore.New(database), func() error { return Close(database) }, nil
}
