package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

// AnswerRepository reads submitted answers. Archived answers are excluded from lists.
type AnswerRepository interface {
	GetByID(ctx context.Context, id uint) (models.SubmittedAnswer, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmittedAnswer, error)
	ListByQuestion(ctx context.Context, questionID uint) ([]models.SubmittedAnswer, error)
	CountBySubmission(ctx context.Context, submissionID uint) (int64, error)
}

type answerRepository struct {
	db *gorm.DB
}

// NewAnswerRepository builds the answer repository.
func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

func (r *answerRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.SubmittedAnswer{}).Where("archived_at IS NULL")
}

func (r *answerRepository) GetByID(ctx context.Context, id uint) (models.SubmittedAnswer, error) {
	var answer models.SubmittedAnswer
	if err := r.db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return models.SubmittedAnswer{}, err
	}

	return answer, nil
}

func (r *answerRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.SubmittedAnswer, error) {
	var answers []models.SubmittedAnswer
	if err := r.active(ctx).
		Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}

	return answers, nil
}

func (r *answerRepository) ListByQuestion(ctx context.Context, questionID uint) ([]models.SubmittedAnswer, error) {
	var answers []models.SubmittedAnswer
	if err := r.active(ctx).
		Where("question_id = ?", questionID).
		Order("submission_id ASC, id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}

	return answers, nil
}

func (r *answerRepository) CountBySubmission(ctx context.Context, submissionID uint) (int64, error) {
	var total int64
	if err := r.active(ctx).Where("submission_id = ?", submissionID).Count(&total).Error; err != nil {
		return 0, err
	}

	return total, nil
}
