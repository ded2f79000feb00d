package data

import (
	"fmt"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/stake-plus/commons/src/shared/gov"
)

// GetMySQLDSN returns the MySQL DSN configured via environment.
func GetMySQLDSN() (string, error) {
	dsn := os.Getenv("MYSQL_DSN")
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("MYSQL_DSN is not set")
	}
	return dsn, nil
}

// Migrate creates or updates every table the service owns and seeds the
// treasury balance row.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(gov.AllModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := db.FirstOrCreate(&gov.TreasuryBalance{}, gov.TreasuryBalance{ID: 1}).Error; err != nil {
		return fmt.Errorf("seed treasury: %w", err)
	}
	return nil
}
