package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// QuestionScoreRepository persists the versioned score ledger.
type QuestionScoreRepository interface {
	// Record supersedes the current version of score.AnswerID and inserts score
	// as the next version inside one transaction. Version and IsCurrent are assigned here.
	Record(ctx context.Context, score *models.QuestionScore) error
	Current(ctx context.Context, answerID uint) (models.QuestionScore, error)
	History(ctx context.Context, answerID uint) ([]models.QuestionScore, error)
	ListCurrentBySubmission(ctx context.Context, submissionID uint) ([]models.QuestionScore, error)
}

type questionScoreRepository struct {
	db *gorm.DB
}

// NewQuestionScoreRepository builds the ledger repository.
func NewQuestionScoreRepository(db *gorm.DB) QuestionScoreRepository {
	return &questionScoreRepository{db: db}
}

func (r *questionScoreRepository) Record(ctx context.Context, score *models.QuestionScore) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("answer_id = ? AND is_current = ?", score.AnswerID, true)
		// SQLite serialises writers itself and rejects FOR UPDATE.
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var current models.QuestionScore
		err := query.Order("version DESC").First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			score.Version = 1
		case err != nil:
			return fmt.Errorf("load current score: %w", err)
		default:
			if err := tx.Model(&models.QuestionScore{}).
				Where("id = ?", current.ID).
				Update("is_current", false).Error; err != nil {
				return fmt.Errorf("supersede score version %d: %w", current.Version, err)
			}
			score.Version = current.Version + 1
		}

		score.ID = 0
		score.IsCurrent = true
		if err := tx.Create(score).Error; err != nil {
			return fmt.Errorf("insert score version %d: %w", score.Version, err)
		}
		return nil
	})
}

func (r *questionScoreRepository) Current(ctx context.Context, answerID uint) (models.QuestionScore, error) {
	var score models.QuestionScore
	if err := r.db.WithContext(ctx).
		Where("answer_id = ? AND is_current = ?", answerID, true).
		First(&score).Error; err != nil {
		return models.QuestionScore{}, err
	}

	return score, nil
}

func (r *questionScoreRepository) History(ctx context.Context, answerID uint) ([]models.QuestionScore, error) {
	var scores []models.QuestionScore
	if err := r.db.WithContext(ctx).
		Where("answer_id = ?", answerID).
		Order("version DESC").
		Find(&scores).Error; err != nil {
		return nil, err
	}

	return scores, nil
}

func (r *questionScoreRepository) ListCurrentBySubmission(ctx context.Context, submissionID uint) ([]models.QuestionScore, error) {
	var scores []models.QuestionScore
	if err := r.db.WithContext(ctx).
		Model(&models.QuestionScore{}).
		Select("question_scores.*").
		Joins("JOIN submitted_answers ON submitted_answers.id = question_scores.answer_id").
		Where("question_scores.submission_id = ?", submissionID).
		Where("question_scores.is_current = ?", true).
		Where("submitted_answers.archived_at IS NULL").
		Order("question_scores.answer_id ASC").
		Find(&scores).Error; err != nil {
		return nil, err
	}

	return scores, nil
}
