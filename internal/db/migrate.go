package db

import (
	"fmt"

	"github.com/tokenmeter/tokenmeter/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all persisted tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.ModelPrice{},
		&models.Usage{},
		&models.Admin{},
		&models.Setting{},
	)
}
