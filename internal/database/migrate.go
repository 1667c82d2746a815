package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// Migrate creates or updates the grading schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Activity{},
		&models.Question{},
		&models.ScoringConfiguration{},
		&models.Submission{},
		&models.SubmittedAnswer{},
		&models.QuestionScore{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate grading schema: %w", err)
	}
	return nil
}
