package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

func TestSubmissionRepositoryRecalculateReadsInsideTransaction(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)
	scores := NewQuestionScoreRepository(db)
	ctx := context.Background()

	submission := models.Submission{ActivityID: 1, StudentID: 3, Status: models.SubmissionStatusGraded}
	require.NoError(t, db.Omit("Activity").Create(&submission).Error)
	answer := seedAnswer(t, db, submission.ID, 1)
	seedAnswer(t, db, submission.ID, 2)
	require.NoError(t, scores.Record(ctx, &models.QuestionScore{
		AnswerID: answer.ID, QuestionID: 1, SubmissionID: submission.ID, Score: 3, MaxScore: 4, GradedBy: "teacher-1", GradedAt: time.Now(),
	}))

	state, aggregate, err := repo.Recalculate(ctx, submission.ID, func(state SubmissionState) SubmissionAggregate {
		return SubmissionAggregate{TotalScore: state.Current[0].Score, MaxPossibleScore: state.Current[0].MaxScore, Percentage: 75}
	})
	require.NoError(t, err)
	require.Len(t, state.Current, 1)
	require.Equal(t, int64(2), state.AnswerCount)
	require.Empty(t, aggregate.Status)

	var stored models.Submission
	require.NoError(t, db.First(&stored, submission.ID).Error)
	require.Equal(t, models.SubmissionStatusGraded, stored.Status)
	require.Equal(t, 3.0, stored.TotalScore)
	require.Equal(t, 75.0, stored.Percentage)
}

func TestSubmissionRepositoryRecalculateMissingSubmission(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewSubmissionRepository(db)

	called := false
	_, _, err := repo.Recalculate(context.Background(), 99, func(SubmissionState) SubmissionAggregate {
		called = true
		return SubmissionAggregate{}
	})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.False(t, called)
}
