package database

import (
	"fmt"

	"gorm.io/gorm"

	"resale/internal/model"
	"resale/pkg/log"
)

// AutoMigrate creates or updates the marketplace tables
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	models := []interface{}{
		&model.User{},
		&model.Post{},
		&model.Order{},
		&model.PaymentIntent{},
		&model.ChatRoom{},
		&model.ChatRoomParticipant{},
		&model.Message{},
		&model.MessageReadBy{},
	}

	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Infof("Migrated model: %T", m)
	}

	log.Info("Database migration completed successfully")
	return nil
}
