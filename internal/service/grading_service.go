package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

const (
	reasonNoConfiguration  = "no scoring configuration; manual grading required"
	reasonManualScoring    = "question is configured for manual grading"
	reasonManuallyGraded   = "current score was given by a grader; left unchanged"
	defaultBulkConcurrency = 4
)

// GradingService orchestrates auto grading, manual grading and score reads.
type GradingService interface {
	AutoGradeAnswer(ctx context.Context, answerID uint, actor ActivityActor) (dto.AutoGradeResponse, error)
	AutoGradeSubmission(ctx context.Context, submissionID uint, actor ActivityActor) (dto.BulkGradeResponse, error)
	ManualGrade(ctx context.Context, answerID uint, payload dto.ManualGradeRequest, actor ActivityActor) (dto.ManualGradeResponse, error)
	RegradeQuestion(ctx context.Context, questionID uint, actor ActivityActor) (dto.BulkGradeResponse, error)
	Recalculate(ctx context.Context, submissionID uint, actor ActivityActor) (dto.SubmissionTotalsResponse, error)
	ScoreSummary(ctx context.Context, submissionID uint) (dto.ScoreSummaryResponse, error)
	GradingInterface(ctx context.Context, submissionID uint) (dto.GradingInterfaceResponse, error)
	History(ctx context.Context, answerID uint) ([]dto.QuestionScoreResponse, error)
}

// GradingServiceDeps groups the collaborators of the grading service.
// Cache, Events and Activity are optional.
type GradingServiceDeps struct {
	Submissions repository.SubmissionRepository
	Answers     repository.AnswerRepository
	Questions   repository.QuestionRepository
	Scores      repository.QuestionScoreRepository
	Ledger      ScoreLedger
	Aggregator  SubmissionAggregator
	Activity    ActivityRecorder
	Events      GradingEventStream
	Cache       *redis.Client
	Validator   *validator.Validate
}

// GradingServiceOptions tunes the grading service.
type GradingServiceOptions struct {
	BulkConcurrency int
	SummaryCacheTTL time.Duration
	SystemGraderID  string
	FuzzyThreshold  float64
}

type gradingService struct {
	submissions  repository.SubmissionRepository
	answers      repository.AnswerRepository
	questions    repository.QuestionRepository
	scores       repository.QuestionScoreRepository
	ledger       ScoreLedger
	aggregator   SubmissionAggregator
	activity     ActivityRecorder
	events       GradingEventStream
	cache        *redis.Client
	cacheTTL     time.Duration
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	tracer       trace.Tracer
	concurrency  int
	systemGrader string
	fuzzy        float64
	logger       zerolog.Logger
}

// NewGradingService constructs the grading orchestrator.
func NewGradingService(deps GradingServiceDeps, opts GradingServiceOptions, logger zerolog.Logger) GradingService {
	concurrency := opts.BulkConcurrency
	if concurrency <= 0 {
		concurrency = defaultBulkConcurrency
	}
	systemGrader := strings.TrimSpace(opts.SystemGraderID)
	if systemGrader == "" {
		systemGrader = "system"
	}
	ttl := opts.SummaryCacheTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	return &gradingService{
		submissions:  deps.Submissions,
		answers:      deps.Answers,
		questions:    deps.Questions,
		scores:       deps.Scores,
		ledger:       deps.Ledger,
		aggregator:   deps.Aggregator,
		activity:     deps.Activity,
		events:       deps.Events,
		cache:        deps.Cache,
		cacheTTL:     ttl,
		validator:    deps.Validator,
		sanitizer:    bluemonday.StrictPolicy(),
		tracer:       otel.Tracer("github.com/noah-isme/gema-grading-api/internal/service/grading"),
		concurrency:  concurrency,
		systemGrader: systemGrader,
		fuzzy:        opts.FuzzyThreshold,
		logger:       logger.With().Str("component", "grading_service").Logger(),
	}
}

func (s *gradingService) AutoGradeAnswer(ctx context.Context, answerID uint, actor ActivityActor) (dto.AutoGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.auto_grade_answer", trace.WithAttributes(
		attribute.Int64("grading.answer_id", int64(answerID)),
		attribute.String("grading.actor_id", actor.ID),
	))
	defer span.End()

	answer, err := s.loadActiveAnswer(ctx, answerID)
	if err != nil {
		failSpan(span, err, "answer_lookup_failed")
		return dto.AutoGradeResponse{}, err
	}

	response, err := s.gradeAnswer(ctx, answer)
	if err != nil {
		failSpan(span, err, "auto_grade_failed")
		return dto.AutoGradeResponse{}, err
	}

	if response.Graded {
		totals, err := s.aggregator.Recalculate(ctx, answer.SubmissionID, "")
		if err != nil {
			failSpan(span, err, "recalculate_failed")
			return dto.AutoGradeResponse{}, err
		}
		response.Submission = &totals
	}

	s.recordActivity(ctx, actor, "answer.auto_graded", "answer", answer.ID, map[string]interface{}{
		"submission_id": answer.SubmissionID,
		"question_id":   answer.QuestionID,
		"graded":        response.Graded,
		"reason":        response.Reason,
	})

	span.SetAttributes(attribute.Bool("grading.graded", response.Graded))
	return response, nil
}

func (s *gradingService) AutoGradeSubmission(ctx context.Context, submissionID uint, actor ActivityActor) (dto.BulkGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.auto_grade_submission", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.String("grading.actor_id", actor.ID),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.GradingDuration().WithLabelValues("auto_grade_submission").Observe(time.Since(start).Seconds())
	}()

	if _, err := s.loadSubmission(ctx, submissionID); err != nil {
		failSpan(span, err, "submission_lookup_failed")
		return dto.BulkGradeResponse{}, err
	}

	answers, err := s.answers.ListBySubmission(ctx, submissionID)
	if err != nil {
		failSpan(span, err, "answer_list_failed")
		return dto.BulkGradeResponse{}, err
	}

	outcomes := s.gradeMany(ctx, answers, false)

	response := summariseOutcomes(outcomes)
	response.SubmissionID = &submissionID

	totals, err := s.aggregator.Recalculate(ctx, submissionID, "")
	if err != nil {
		failSpan(span, err, "recalculate_failed")
		return dto.BulkGradeResponse{}, err
	}
	response.Submissions = []dto.SubmissionTotalsResponse{totals}

	s.recordActivity(ctx, actor, "submission.auto_graded", "submission", submissionID, map[string]interface{}{
		"processed": response.Processed,
		"graded":    response.Graded,
		"manual":    response.Manual,
		"failed":    response.Failed,
	})

	span.SetAttributes(
		attribute.Int("grading.processed", response.Processed),
		attribute.Int("grading.failed", response.Failed),
	)
	if response.Failed > 0 {
		s.logger.Warn().Uint("submission_id", submissionID).Int("failed", response.Failed).Msg("some answers could not be auto graded")
	}

	return response, nil
}

func (s *gradingService) ManualGrade(ctx context.Context, answerID uint, payload dto.ManualGradeRequest, actor ActivityActor) (dto.ManualGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.manual_grade", trace.WithAttributes(
		attribute.Int64("grading.answer_id", int64(answerID)),
		attribute.String("grading.actor_id", actor.ID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		failSpan(span, err, "validation_failed")
		return dto.ManualGradeResponse{}, err
	}

	graderID := strings.TrimSpace(actor.ID)
	if graderID == "" {
		err := fmt.Errorf("%w: grader id is required", ErrValidation)
		failSpan(span, err, "validation_failed")
		return dto.ManualGradeResponse{}, err
	}

	if err := ValidateScore(*payload.Score, *payload.MaxScore); err != nil {
		failSpan(span, err, "invalid_score")
		return dto.ManualGradeResponse{}, err
	}

	answer, err := s.loadActiveAnswer(ctx, answerID)
	if err != nil {
		failSpan(span, err, "answer_lookup_failed")
		return dto.ManualGradeResponse{}, err
	}

	score, err := s.ledger.RecordScore(ctx, answer, ScoreData{
		Score:          *payload.Score,
		MaxScore:       *payload.MaxScore,
		Feedback:       strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback)),
		RubricID:       payload.RubricID,
		CriteriaScores: payload.CriteriaScores,
	}, graderID)
	if err != nil {
		failSpan(span, err, "record_failed")
		return dto.ManualGradeResponse{}, err
	}
	observability.AnswersGraded().WithLabelValues("manual", dto.OutcomeGraded).Inc()

	scoreResponse := dto.NewQuestionScoreResponse(score)
	s.publishScore(ctx, scoreResponse)

	totals, err := s.aggregator.Recalculate(ctx, answer.SubmissionID, graderID)
	if err != nil {
		failSpan(span, err, "recalculate_failed")
		return dto.ManualGradeResponse{}, err
	}

	s.recordActivity(ctx, actor, "answer.graded", "answer", answer.ID, map[string]interface{}{
		"submission_id": answer.SubmissionID,
		"question_id":   answer.QuestionID,
		"score":         score.Score,
		"max_score":     score.MaxScore,
		"version":       score.Version,
	})

	span.SetAttributes(
		attribute.Float64("grading.score", score.Score),
		attribute.Int("grading.version", score.Version),
	)

	return dto.ManualGradeResponse{Score: scoreResponse, Submission: totals}, nil
}

func (s *gradingService) RegradeQuestion(ctx context.Context, questionID uint, actor ActivityActor) (dto.BulkGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.regrade_question", trace.WithAttributes(
		attribute.Int64("grading.question_id", int64(questionID)),
		attribute.String("grading.actor_id", actor.ID),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.GradingDuration().WithLabelValues("regrade_question").Observe(time.Since(start).Seconds())
	}()

	if _, err := s.questions.GetByID(ctx, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrQuestionNotFound
		}
		failSpan(span, err, "question_lookup_failed")
		return dto.BulkGradeResponse{}, err
	}

	answers, err := s.answers.ListByQuestion(ctx, questionID)
	if err != nil {
		failSpan(span, err, "answer_list_failed")
		return dto.BulkGradeResponse{}, err
	}

	outcomes := s.gradeMany(ctx, answers, true)
	response := summariseOutcomes(outcomes)
	response.QuestionID = &questionID

	submissionIDs := make([]uint, 0)
	seen := make(map[uint]struct{})
	for _, outcome := range outcomes {
		if outcome.Outcome != dto.OutcomeGraded {
			continue
		}
		if _, ok := seen[outcome.SubmissionID]; ok {
			continue
		}
		seen[outcome.SubmissionID] = struct{}{}
		submissionIDs = append(submissionIDs, outcome.SubmissionID)
	}
	sort.Slice(submissionIDs, func(i, j int) bool { return submissionIDs[i] < submissionIDs[j] })

	for _, submissionID := range submissionIDs {
		totals, err := s.aggregator.Recalculate(ctx, submissionID, "")
		if err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to recalculate submission after regrade")
			span.RecordError(err)
			continue
		}
		response.Submissions = append(response.Submissions, totals)
	}

	s.recordActivity(ctx, actor, "question.regraded", "question", questionID, map[string]interface{}{
		"processed":   response.Processed,
		"graded":      response.Graded,
		"failed":      response.Failed,
		"submissions": len(response.Submissions),
	})

	return response, nil
}

func (s *gradingService) Recalculate(ctx context.Context, submissionID uint, actor ActivityActor) (dto.SubmissionTotalsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.recalculate", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
	))
	defer span.End()

	totals, err := s.aggregator.Recalculate(ctx, submissionID, "")
	if err != nil {
		failSpan(span, err, "recalculate_failed")
		return dto.SubmissionTotalsResponse{}, err
	}

	s.recordActivity(ctx, actor, "submission.recalculated", "submission", submissionID, map[string]interface{}{
		"total_score": totals.TotalScore,
		"status":      totals.Status,
	})

	return totals, nil
}

func (s *gradingService) History(ctx context.Context, answerID uint) ([]dto.QuestionScoreResponse, error) {
	if _, err := s.answers.GetByID(ctx, answerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnswerNotFound
		}
		return nil, err
	}

	history, err := s.ledger.History(ctx, answerID)
	if err != nil {
		return nil, err
	}

	return dto.NewQuestionScoreResponseSlice(history), nil
}

// gradeAnswer auto grades one active answer and records a new score version.
// Answers that cannot be auto graded are reported, not failed.
func (s *gradingService) gradeAnswer(ctx context.Context, answer models.SubmittedAnswer) (dto.AutoGradeResponse, error) {
	start := time.Now()
	defer func() {
		observability.GradingDuration().WithLabelValues("auto_grade_answer").Observe(time.Since(start).Seconds())
	}()

	response := dto.AutoGradeResponse{AnswerID: answer.ID, QuestionID: answer.QuestionID}

	stored, err := s.questions.GetScoringConfig(ctx, answer.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.AnswersGraded().WithLabelValues("none", dto.OutcomeManual).Inc()
			response.RequiresManualGrading = true
			response.Reason = reasonNoConfiguration
			return response, nil
		}
		return dto.AutoGradeResponse{}, err
	}

	cfg, err := decodeScoringConfig(stored)
	if err != nil {
		return dto.AutoGradeResponse{}, fmt.Errorf("question %d: %w", answer.QuestionID, err)
	}

	if cfg.ScoringType == grading.ScoringManual {
		observability.AnswersGraded().WithLabelValues("none", dto.OutcomeManual).Inc()
		response.RequiresManualGrading = true
		response.Reason = reasonManualScoring
		return response, nil
	}

	if s.fuzzy > 0 {
		cfg.Options.FuzzyThreshold = s.fuzzy
	}

	result := grading.GradeResponse(s.answerFields(answer, cfg), cfg)
	resultResponse := dto.NewGradeResultResponse(result)
	response.Result = &resultResponse

	if !result.Success {
		observability.AnswersGraded().WithLabelValues("none", dto.OutcomeManual).Inc()
		response.RequiresManualGrading = true
		response.Reason = result.Feedback
		return response, nil
	}

	score, err := s.ledger.RecordScore(ctx, answer, ScoreData{
		Score:    result.Score,
		MaxScore: result.MaxScore,
		Feedback: result.Feedback,
	}, s.systemGrader)
	if err != nil {
		return dto.AutoGradeResponse{}, err
	}

	outcome := "incorrect"
	if result.Correct {
		outcome = "correct"
	}
	observability.AnswersGraded().WithLabelValues(result.ScoringMethod, outcome).Inc()

	scoreResponse := dto.NewQuestionScoreResponse(score)
	response.Graded = true
	response.Score = &scoreResponse
	s.publishScore(ctx, scoreResponse)

	return response, nil
}

// gradeMany grades answers with bounded concurrency. A failing answer never
// stops the others; its error is reported in its outcome row.
func (s *gradingService) gradeMany(ctx context.Context, answers []models.SubmittedAnswer, keepManualScores bool) []dto.AnswerGradeOutcome {
	outcomes := make([]dto.AnswerGradeOutcome, len(answers))

	var group errgroup.Group
	group.SetLimit(s.concurrency)
	for i, answer := range answers {
		i, answer := i, answer
		group.Go(func() error {
			outcomes[i] = s.gradeOutcome(ctx, answer, keepManualScores)
			return nil
		})
	}
	_ = group.Wait()

	return outcomes
}

func (s *gradingService) gradeOutcome(ctx context.Context, answer models.SubmittedAnswer, keepManualScores bool) dto.AnswerGradeOutcome {
	outcome := dto.AnswerGradeOutcome{
		AnswerID:     answer.ID,
		QuestionID:   answer.QuestionID,
		SubmissionID: answer.SubmissionID,
	}

	if keepManualScores {
		current, err := s.ledger.CurrentScore(ctx, answer.ID)
		if err != nil {
			outcome.Outcome = dto.OutcomeFailed
			outcome.Error = err.Error()
			return outcome
		}
		if current != nil && current.GradedBy != s.systemGrader {
			outcome.Outcome = dto.OutcomeManual
			outcome.Reason = reasonManuallyGraded
			outcome.Score = current.Score
			outcome.MaxScore = current.MaxScore
			return outcome
		}
	}

	response, err := s.gradeAnswer(ctx, answer)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Uint("answer_id", answer.ID).Msg("auto grading failed")
		outcome.Outcome = dto.OutcomeFailed
		outcome.Error = err.Error()
	case response.Graded:
		outcome.Outcome = dto.OutcomeGraded
		outcome.Score = response.Score.Score
		outcome.MaxScore = response.Score.MaxScore
	default:
		outcome.Outcome = dto.OutcomeManual
		outcome.Reason = response.Reason
	}

	return outcome
}

func summariseOutcomes(outcomes []dto.AnswerGradeOutcome) dto.BulkGradeResponse {
	response := dto.BulkGradeResponse{
		Processed:   len(outcomes),
		Results:     outcomes,
		Submissions: []dto.SubmissionTotalsResponse{},
	}
	for _, outcome := range outcomes {
		switch outcome.Outcome {
		case dto.OutcomeGraded:
			response.Graded++
		case dto.OutcomeManual:
			response.Manual++
		case dto.OutcomeFailed:
			response.Failed++
		}
	}
	return response
}

// answerFields maps the stored answer onto the expected answer fields. An
// object is taken as a field map; a scalar belongs to the answer's element or,
// failing that, to the only expected field.
func (s *gradingService) answerFields(answer models.SubmittedAnswer, cfg grading.Config) map[string]interface{} {
	fields := map[string]interface{}{}
	if len(answer.AnswerData) == 0 {
		return fields
	}

	var decoded interface{}
	if err := json.Unmarshal(answer.AnswerData, &decoded); err != nil {
		s.logger.Warn().Err(err).Uint("answer_id", answer.ID).Msg("malformed answer data treated as blank")
		return fields
	}

	if object, ok := decoded.(map[string]interface{}); ok {
		return object
	}

	if answer.ElementID != "" {
		if _, ok := cfg.ExpectedAnswers[answer.ElementID]; ok {
			fields[answer.ElementID] = decoded
			return fields
		}
	}
	if len(cfg.ExpectedAnswers) == 1 {
		for fieldID := range cfg.ExpectedAnswers {
			fields[fieldID] = decoded
		}
		return fields
	}
	if answer.ElementID != "" {
		fields[answer.ElementID] = decoded
	}
	return fields
}

func (s *gradingService) loadActiveAnswer(ctx context.Context, answerID uint) (models.SubmittedAnswer, error) {
	answer, err := s.answers.GetByID(ctx, answerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SubmittedAnswer{}, ErrAnswerNotFound
		}
		return models.SubmittedAnswer{}, err
	}
	if answer.IsArchived() {
		return models.SubmittedAnswer{}, ErrAnswerNotFound
	}
	return answer, nil
}

func (s *gradingService) loadSubmission(ctx context.Context, submissionID uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *gradingService) publishScore(ctx context.Context, score dto.QuestionScoreResponse) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, dto.GradingEvent{
		Type:         dto.EventScoreRecorded,
		SubmissionID: score.SubmissionID,
		AnswerID:     score.AnswerID,
		QuestionID:   score.QuestionID,
		Score:        &score,
	})
}

func (s *gradingService) recordActivity(ctx context.Context, actor ActivityActor, action, entityType string, entityID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	id := entityID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   &id,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record grading activity")
	}
}

func failSpan(span trace.Span, err error, status string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
}
