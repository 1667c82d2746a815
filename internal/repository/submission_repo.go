package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// SubmissionAggregate carries the derived score fields written by a recalculation.
// An empty Status leaves the stored status as it is.
type SubmissionAggregate struct {
	TotalScore       float64
	MaxPossibleScore float64
	Percentage       float64
	Status           string
	GradedAt         *time.Time
	GradedBy         *string
}

// SubmissionState is what a recalculation reads while holding the submission row.
type SubmissionState struct {
	Submission  models.Submission
	Current     []models.QuestionScore
	AnswerCount int64
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	// Recalculate locks the submission, loads its current scores and active
	// answer count, then persists the aggregate derive returns, all in one transaction.
	Recalculate(ctx context.Context, id uint, derive func(SubmissionState) SubmissionAggregate) (SubmissionState, SubmissionAggregate, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).Preload("Activity").First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) Recalculate(ctx context.Context, id uint, derive func(SubmissionState) SubmissionAggregate) (SubmissionState, SubmissionAggregate, error) {
	var (
		state     SubmissionState
		aggregate SubmissionAggregate
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.Submission{})
		// SQLite serialises writers itself and rejects FOR UPDATE.
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.First(&state.Submission, id).Error; err != nil {
			return err
		}

		current, err := NewQuestionScoreRepository(tx).ListCurrentBySubmission(ctx, id)
		if err != nil {
			return fmt.Errorf("load current scores: %w", err)
		}
		state.Current = current

		state.AnswerCount, err = NewAnswerRepository(tx).CountBySubmission(ctx, id)
		if err != nil {
			return fmt.Errorf("count answers: %w", err)
		}

		aggregate = derive(state)
		return writeAggregate(tx, id, aggregate)
	})
	if err != nil {
		return SubmissionState{}, SubmissionAggregate{}, err
	}

	return state, aggregate, nil
}

func writeAggregate(tx *gorm.DB, id uint, aggregate SubmissionAggregate) error {
	updates := map[string]interface{}{
		"total_score":        aggregate.TotalScore,
		"max_possible_score": aggregate.MaxPossibleScore,
		"percentage":         aggregate.Percentage,
	}
	if aggregate.Status != "" {
		updates["status"] = aggregate.Status
	}
	if aggregate.GradedAt != nil {
		updates["graded_at"] = *aggregate.GradedAt
	}
	if aggregate.GradedBy != nil {
		updates["graded_by"] = *aggregate.GradedBy
	}

	result := tx.Model(&models.Submission{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
