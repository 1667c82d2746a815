package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// QuestionRepository reads questions and their scoring configuration.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Question, error)
	ListByActivity(ctx context.Context, activityID uint) ([]models.Question, error)
	GetScoringConfig(ctx context.Context, questionID uint) (models.ScoringConfiguration, error)
	UpsertScoringConfig(ctx context.Context, cfg *models.ScoringConfiguration) error
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository builds the question repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *questionRepository) ListByActivity(ctx context.Context, activityID uint) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("position ASC, id ASC").
		Find(&questions).Error; err != nil {
		return nil, err
	}

	return questions, nil
}

func (r *questionRepository) GetScoringConfig(ctx context.Context, questionID uint) (models.ScoringConfiguration, error) {
	var cfg models.ScoringConfiguration
	if err := r.db.WithContext(ctx).Where("question_id = ?", questionID).First(&cfg).Error; err != nil {
		return models.ScoringConfiguration{}, err
	}

	return cfg, nil
}

func (r *questionRepository) UpsertScoringConfig(ctx context.Context, cfg *models.ScoringConfiguration) error {
	return r.db.WithContext(ctx).
		Omit("Question").
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"scoring_type",
				"weight",
				"rubric_reference",
				"expected_answers",
				"expected_kinds",
				"auto_grade_options",
				"field_scores",
				"updated_by",
				"updated_at",
			}),
		}).
		Create(cfg).Error
}
