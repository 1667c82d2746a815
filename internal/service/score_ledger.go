package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

const scoreEpsilon = 1e-9

// ScoreData is the payload of one new score version.
type ScoreData struct {
	Score          float64
	MaxScore       float64
	Feedback       string
	RubricID       *string
	CriteriaScores map[string]float64
}

// ScoreLedger records versioned scores per answer.
type ScoreLedger interface {
	RecordScore(ctx context.Context, answer models.SubmittedAnswer, data ScoreData, graderID string) (models.QuestionScore, error)
	CurrentScore(ctx context.Context, answerID uint) (*models.QuestionScore, error)
	History(ctx context.Context, answerID uint) ([]models.QuestionScore, error)
}

type scoreLedger struct {
	repo   repository.QuestionScoreRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewScoreLedger constructs the score ledger.
func NewScoreLedger(repo repository.QuestionScoreRepository, logger zerolog.Logger) ScoreLedger {
	return &scoreLedger{
		repo:   repo,
		logger: logger.With().Str("component", "score_ledger").Logger(),
		now:    time.Now,
	}
}

// ValidateScore rejects NaN, infinities, negative values and scores above maxScore.
func ValidateScore(score, maxScore float64) error {
	if math.IsNaN(score) || math.IsNaN(maxScore) || math.IsInf(score, 0) || math.IsInf(maxScore, 0) {
		return ErrInvalidScore
	}
	if maxScore < 0 || score < 0 || score > maxScore+scoreEpsilon {
		return ErrInvalidScore
	}
	return nil
}

func (l *scoreLedger) RecordScore(ctx context.Context, answer models.SubmittedAnswer, data ScoreData, graderID string) (models.QuestionScore, error) {
	if err := ValidateScore(data.Score, data.MaxScore); err != nil {
		return models.QuestionScore{}, fmt.Errorf("answer %d: %w", answer.ID, err)
	}
	if strings.TrimSpace(graderID) == "" {
		return models.QuestionScore{}, fmt.Errorf("%w: grader id is required", ErrValidation)
	}

	score := models.QuestionScore{
		AnswerID:     answer.ID,
		QuestionID:   answer.QuestionID,
		SubmissionID: answer.SubmissionID,
		Score:        math.Min(data.Score, data.MaxScore),
		MaxScore:     data.MaxScore,
		RubricID:     data.RubricID,
		Feedback:     data.Feedback,
		GradedBy:     graderID,
		GradedAt:     l.now().UTC(),
	}
	if len(data.CriteriaScores) > 0 {
		payload, err := json.Marshal(data.CriteriaScores)
		if err != nil {
			return models.QuestionScore{}, fmt.Errorf("encode criteria scores: %w", err)
		}
		score.CriteriaScores = payload
	}

	if err := l.repo.Record(ctx, &score); err != nil {
		l.logger.Error().Err(err).Uint("answer_id", answer.ID).Msg("failed to record score version")
		return models.QuestionScore{}, err
	}

	l.logger.Info().
		Uint("answer_id", answer.ID).
		Uint("submission_id", answer.SubmissionID).
		Int("version", score.Version).
		Float64("score", score.Score).
		Float64("max_score", score.MaxScore).
		Str("graded_by", graderID).
		Msg("score recorded")

	return score, nil
}

// CurrentScore returns nil without error when the answer was never graded.
func (l *scoreLedger) CurrentScore(ctx context.Context, answerID uint) (*models.QuestionScore, error) {
	score, err := l.repo.Current(ctx, answerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &score, nil
}

func (l *scoreLedger) History(ctx context.Context, answerID uint) ([]models.QuestionScore, error) {
	return l.repo.History(ctx, answerID)
}
