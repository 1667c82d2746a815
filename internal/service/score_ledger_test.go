package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

func TestValidateScore(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		maxScore float64
		valid    bool
	}{
		{name: "zero of zero", score: 0, maxScore: 0, valid: true},
		{name: "full marks", score: 10, maxScore: 10, valid: true},
		{name: "partial", score: 2.5, maxScore: 10, valid: true},
		{name: "negative score", score: -1, maxScore: 10},
		{name: "above max", score: 10.5, maxScore: 10},
		{name: "negative max", score: 0, maxScore: -1},
		{name: "nan", score: math.NaN(), maxScore: 10},
		{name: "infinite max", score: 1, maxScore: math.Inf(1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateScore(tc.score, tc.maxScore)
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidScore)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestScoreLedgerRecordsVersions(t *testing.T) {
	db := setupServiceDB(t)
	ledger := NewScoreLedger(repository.NewQuestionScoreRepository(db), testLogger())
	ctx := context.Background()

	answer := models.SubmittedAnswer{SubmissionID: 1, QuestionID: 2, AnswerData: []byte(`"x"`)}
	require.NoError(t, db.Create(&answer).Error)

	current, err := ledger.CurrentScore(ctx, answer.ID)
	require.NoError(t, err)
	require.Nil(t, current)

	first, err := ledger.RecordScore(ctx, answer, ScoreData{Score: 3, MaxScore: 5, CriteriaScores: map[string]float64{"clarity": 2}}, "teacher-1")
	require.NoError(t, err)
	require.Equal(t, 1, first.Version)
	require.Equal(t, uint(1), first.SubmissionID)
	require.Equal(t, uint(2), first.QuestionID)
	require.JSONEq(t, `{"clarity":2}`, string(first.CriteriaScores))

	second, err := ledger.RecordScore(ctx, answer, ScoreData{Score: 4, MaxScore: 5}, "teacher-2")
	require.NoError(t, err)
	require.Equal(t, 2, second.Version)

	current, err = ledger.CurrentScore(ctx, answer.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, 2, current.Version)
	require.Equal(t, "teacher-2", current.GradedBy)

	history, err := ledger.History(ctx, answer.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.False(t, history[1].IsCurrent)
}

func TestScoreLedgerRejectsInvalidInput(t *testing.T) {
	db := setupServiceDB(t)
	ledger := NewScoreLedger(repository.NewQuestionScoreRepository(db), testLogger())
	ctx := context.Background()

	answer := models.SubmittedAnswer{SubmissionID: 1, QuestionID: 1}
	require.NoError(t, db.Create(&answer).Error)

	_, err := ledger.RecordScore(ctx, answer, ScoreData{Score: 6, MaxScore: 5}, "teacher-1")
	require.ErrorIs(t, err, ErrInvalidScore)

	_, err = ledger.RecordScore(ctx, answer, ScoreData{Score: 1, MaxScore: 5}, "  ")
	require.ErrorIs(t, err, ErrValidation)

	var count int64
	require.NoError(t, db.Model(&models.QuestionScore{}).Count(&count).Error)
	require.Zero(t, count)
}
