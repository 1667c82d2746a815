package service

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

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

type gradingFixture struct {
	db         *gorm.DB
	service    GradingService
	ledger     ScoreLedger
	aggregator SubmissionAggregator
	activity   ActivityService
	events     GradingEventStream
	configs    ScoringConfigService
}

func newGradingFixture(t *testing.T, db *gorm.DB, cache *redis.Client, logger zerolog.Logger) gradingFixture {
	t.Helper()

	submissions := repository.NewSubmissionRepository(db)
	answers := repository.NewAnswerRepository(db)
	questions := repository.NewQuestionRepository(db)
	scores := repository.NewQuestionScoreRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	validate := validator.New(validator.WithRequiredStructEnabled())
	events := NewGradingEventStream(nil, "", nil, logger)
	activity := NewActivityService(activityRepo, logger)
	ledger := NewScoreLedger(scores, logger)
	aggregator := NewSubmissionAggregator(submissions, cache, events, "system", logger)

	svc := NewGradingService(GradingServiceDeps{
		Submissions: submissions,
		Answers:     answers,
		Questions:   questions,
		Scores:      scores,
		Ledger:      ledger,
		Aggregator:  aggregator,
		Activity:    activity,
		Events:      events,
		Cache:       cache,
		Validator:   validate,
	}, GradingServiceOptions{BulkConcurrency: 1, SummaryCacheTTL: time.Minute, SystemGraderID: "system"}, logger)

	return gradingFixture{
		db:         db,
		service:    svc,
		ledger:     ledger,
		aggregator: aggregator,
		activity:   activity,
		events:     events,
		configs:    NewScoringConfigService(questions, validate, activity, logger),
	}
}

func seedActivity(t *testing.T, db *gorm.DB, titles ...string) (models.Activity, []models.Question) {
	t.Helper()
	activity := models.Activity{Title: "Geography quiz"}
	require.NoError(t, db.Create(&activity).Error)

	questions := make([]models.Question, 0, len(titles))
	for idx, title := range titles {
		question := models.Question{ActivityID: activity.ID, Title: title, Position: idx + 1}
		require.NoError(t, db.Create(&question).Error)
		questions = append(questions, question)
	}
	return activity, questions
}

func seedScoringConfig(t *testing.T, db *gorm.DB, questionID uint, scoringType string, expected map[string]interface{}, options map[string]interface{}, fieldScores map[string]interface{}) {
	t.Helper()
	cfg := models.ScoringConfiguration{QuestionID: questionID, ScoringType: scoringType, Weight: 1}
	cfg.ExpectedAnswers = mustJSON(t, expected)
	if options != nil {
		cfg.AutoGradeOptions = mustJSON(t, options)
	}
	if fieldScores != nil {
		cfg.FieldScores = mustJSON(t, fieldScores)
	}
	require.NoError(t, db.Omit("Question").Create(&cfg).Error)
}

func seedSubmission(t *testing.T, db *gorm.DB, activityID uint) models.Submission {
	t.Helper()
	submittedAt := time.Now()
	submission := models.Submission{
		ActivityID:  activityID,
		StudentID:   42,
		Status:      models.SubmissionStatusSubmitted,
		SubmittedAt: &submittedAt,
	}
	require.NoError(t, db.Omit("Activity").Create(&submission).Error)
	return submission
}

func seedSubmittedAnswer(t *testing.T, db *gorm.DB, submissionID, questionID uint, value interface{}) models.SubmittedAnswer {
	t.Helper()
	answer := models.SubmittedAnswer{
		SubmissionID: submissionID,
		QuestionID:   questionID,
		AnswerData:   mustJSON(t, value),
	}
	require.NoError(t, db.Create(&answer).Error)
	return answer
}

func mustJSON(t *testing.T, value interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(value)
	require.NoError(t, err)
	return payload
}

func ptrFloat(v float64) *float64 {
	return &v
}

func teacher() ActivityActor {
	return ActivityActor{ID: "teacher-7", Role: "teacher"}
}
