package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"referral-engine/internal/logging"
	"referral-engine/internal/models"
)

var DB *gorm.DB

// Config returns the gorm settings shared by every connection
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Logger.Info("database connection established")
	return nil
}

// Models lists every table owned by the referral engine
func Models() []interface{} {
	return []interface{}{
		&models.Account{},
		&models.Commission{},
		&models.PayoutRequest{},
		&models.AdminUser{},
		&models.AdminLog{},
		&models.IntegritySnapshot{},
	}
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB) error {
	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}

	logging.Logger.Info("database migrations completed", zap.Int("models", len(Models())))
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
