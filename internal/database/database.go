package database

import (
	"context"
	"fmt"

	"github.com/learnhub/server/internal/config"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.AuditLog{},
	)
}

// SeedBootstrapAdmins promotes the listed emails to ADMIN. Only rows already
// owned by a provider account qualify; emails without one are skipped and
// promoted on a later start.
func SeedBootstrapAdmins(db *gorm.DB, emails []string) error {
	for _, email := range emails {
		result := db.Model(&models.User{}).
			Where("email = ? AND role <> ? AND firebase_uid IS NOT NULL", email, models.UserRoleAdmin).
			Update("role", models.UserRoleAdmin)
		if result.Error != nil {
			return fmt.Errorf("promote %s: %w", email, result.Error)
		}
		if result.RowsAffected > 0 {
			logger.Info("bootstrap_admin_promoted", map[string]interface{}{"email": email})
		}
	}
	return nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
