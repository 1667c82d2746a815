package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

func setupGradingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Activity{},
		&models.Question{},
		&models.ScoringConfiguration{},
		&models.Submission{},
		&models.SubmittedAnswer{},
		&models.QuestionScore{},
		&models.ActivityLog{},
	))
	return db
}

func seedAnswer(t *testing.T, db *gorm.DB, submissionID, questionID uint) models.SubmittedAnswer {
	t.Helper()
	answer := models.SubmittedAnswer{SubmissionID: submissionID, QuestionID: questionID, AnswerData: []byte(`{"answer":"x"}`)}
	require.NoError(t, db.Create(&answer).Error)
	return answer
}

func TestQuestionScoreRepositoryRecordKeepsSingleCurrentVersion(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewQuestionScoreRepository(db)
	ctx := context.Background()

	answer := seedAnswer(t, db, 1, 1)

	const rounds = 5
	for i := 1; i <= rounds; i++ {
		score := &models.QuestionScore{
			AnswerID:     answer.ID,
			QuestionID:   1,
			SubmissionID: 1,
			Score:        float64(i),
			MaxScore:     10,
			GradedBy:     "teacher-1",
			GradedAt:     time.Now(),
		}
		require.NoError(t, repo.Record(ctx, score))
		require.Equal(t, i, score.Version)
		require.True(t, score.IsCurrent)
	}

	var currentCount int64
	require.NoError(t, db.Model(&models.QuestionScore{}).Where("answer_id = ? AND is_current = ?", answer.ID, true).Count(&currentCount).Error)
	require.Equal(t, int64(1), currentCount)

	current, err := repo.Current(ctx, answer.ID)
	require.NoError(t, err)
	require.Equal(t, rounds, current.Version)
	require.Equal(t, float64(rounds), current.Score)

	history, err := repo.History(ctx, answer.ID)
	require.NoError(t, err)
	require.Len(t, history, rounds)
	for idx, entry := range history {
		require.Equal(t, rounds-idx, entry.Version)
		require.Equal(t, idx == 0, entry.IsCurrent)
	}
}

func TestQuestionScoreRepositoryCurrentMissing(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewQuestionScoreRepository(db)

	_, err := repo.Current(context.Background(), 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestQuestionScoreRepositoryRejectsDuplicateVersion(t *testing.T) {
	db := setupGradingTestDB(t)
	answer := seedAnswer(t, db, 1, 1)

	first := models.QuestionScore{AnswerID: answer.ID, SubmissionID: 1, QuestionID: 1, Score: 1, MaxScore: 1, GradedBy: "a", GradedAt: time.Now(), Version: 1, IsCurrent: true}
	require.NoError(t, db.Create(&first).Error)

	duplicate := first
	duplicate.ID = 0
	require.Error(t, db.Create(&duplicate).Error)
}

func TestQuestionScoreRepositoryListCurrentSkipsArchivedAnswers(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewQuestionScoreRepository(db)
	ctx := context.Background()

	kept := seedAnswer(t, db, 7, 1)
	archived := seedAnswer(t, db, 7, 2)
	other := seedAnswer(t, db, 8, 1)

	for _, answer := range []models.SubmittedAnswer{kept, archived, other} {
		require.NoError(t, repo.Record(ctx, &models.QuestionScore{
			AnswerID:     answer.ID,
			QuestionID:   answer.QuestionID,
			SubmissionID: answer.SubmissionID,
			Score:        1,
			MaxScore:     2,
			GradedBy:     "system",
			GradedAt:     time.Now(),
		}))
	}
	// regrade the kept answer once more; only the newest version may be listed
	require.NoError(t, repo.Record(ctx, &models.QuestionScore{
		AnswerID: kept.ID, QuestionID: 1, SubmissionID: 7, Score: 2, MaxScore: 2, GradedBy: "system", GradedAt: time.Now(),
	}))

	now := time.Now()
	require.NoError(t, db.Model(&models.SubmittedAnswer{}).Where("id = ?", archived.ID).Update("archived_at", now).Error)

	scores, err := repo.ListCurrentBySubmission(ctx, 7)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	require.Equal(t, kept.ID, scores[0].AnswerID)
	require.Equal(t, 2, scores[0].Version)
	require.Equal(t, 2.0, scores[0].Score)
}

func TestAnswerRepositoryExcludesArchived(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewAnswerRepository(db)
	ctx := context.Background()

	seedAnswer(t, db, 3, 1)
	archived := seedAnswer(t, db, 3, 2)
	now := time.Now()
	require.NoError(t, db.Model(&archived).Update("archived_at", now).Error)

	answers, err := repo.ListBySubmission(ctx, 3)
	require.NoError(t, err)
	require.Len(t, answers, 1)

	total, err := repo.CountBySubmission(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	byQuestion, err := repo.ListByQuestion(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, byQuestion)
}

func TestQuestionRepositoryUpsertScoringConfig(t *testing.T) {
	db := setupGradingTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	question := models.Question{ActivityID: 1, Title: "Capital"}
	require.NoError(t, db.Create(&question).Error)

	first := models.ScoringConfiguration{QuestionID: question.ID, ScoringType: models.ScoringTypeAuto, Weight: 1, ExpectedAnswers: []byte(`{"answer":"Paris"}`)}
	require.NoError(t, repo.UpsertScoringConfig(ctx, &first))

	second := models.ScoringConfiguration{QuestionID: question.ID, ScoringType: models.ScoringTypeManual, Weight: 2, ExpectedAnswers: []byte(`{"answer":"Rome"}`)}
	require.NoError(t, repo.UpsertScoringConfig(ctx, &second))

	var count int64
	require.NoError(t, db.Model(&models.ScoringConfiguration{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	stored, err := repo.GetScoringConfig(ctx, question.ID)
	require.NoError(t, err)
	require.Equal(t, models.ScoringTypeManual, stored.ScoringType)
	require.Equal(t, 2.0, stored.Weight)
	require.JSONEq(t, `{"answer":"Rome"}`, string(stored.ExpectedAnswers))
}
