package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

func (s *gradingService) ScoreSummary(ctx context.Context, submissionID uint) (dto.ScoreSummaryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.score_summary", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
	))
	defer span.End()

	cacheKey := summaryCacheKey(submissionID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.ScoreSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("submission_id", submissionID).Msg("score summary cache hit")
				response.CacheHit = true
				span.SetAttributes(attribute.Bool("grading.cache_hit", true))
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read score summary cache")
		}
	}

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		failSpan(span, err, "submission_lookup_failed")
		return dto.ScoreSummaryResponse{}, err
	}

	answers, err := s.answers.ListBySubmission(ctx, submissionID)
	if err != nil {
		failSpan(span, err, "answer_list_failed")
		return dto.ScoreSummaryResponse{}, err
	}

	current, err := s.scores.ListCurrentBySubmission(ctx, submissionID)
	if err != nil {
		failSpan(span, err, "score_list_failed")
		return dto.ScoreSummaryResponse{}, err
	}

	totals := computeTotals(current, len(answers))
	graded := make(map[uint]struct{}, len(current))
	for _, score := range current {
		graded[score.AnswerID] = struct{}{}
	}

	pending := make([]dto.PendingAnswerResponse, 0)
	for _, answer := range answers {
		if _, ok := graded[answer.ID]; ok {
			continue
		}
		pending = append(pending, dto.PendingAnswerResponse{
			AnswerID:   answer.ID,
			QuestionID: answer.QuestionID,
			ElementID:  answer.ElementID,
		})
	}

	response := dto.ScoreSummaryResponse{
		SubmissionID:     submission.ID,
		ActivityID:       submission.ActivityID,
		StudentID:        submission.StudentID,
		Status:           submission.Status,
		TotalScore:       totals.TotalScore,
		MaxPossibleScore: totals.MaxPossibleScore,
		Percentage:       totals.Percentage,
		TotalAnswers:     totals.TotalAnswers,
		GradedCount:      totals.GradedCount,
		PendingCount:     totals.PendingCount,
		GradedAt:         submission.GradedAt,
		GradedBy:         submission.GradedBy,
		Scores:           dto.NewQuestionScoreResponseSlice(current),
		Pending:          pending,
	}

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store score summary cache")
			}
		}
	}

	return response, nil
}

func (s *gradingService) GradingInterface(ctx context.Context, submissionID uint) (dto.GradingInterfaceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.interface", trace.WithAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
	))
	defer span.End()

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		failSpan(span, err, "submission_lookup_failed")
		return dto.GradingInterfaceResponse{}, err
	}

	questions, err := s.questions.ListByActivity(ctx, submission.ActivityID)
	if err != nil {
		failSpan(span, err, "question_list_failed")
		return dto.GradingInterfaceResponse{}, err
	}

	answers, err := s.answers.ListBySubmission(ctx, submissionID)
	if err != nil {
		failSpan(span, err, "answer_list_failed")
		return dto.GradingInterfaceResponse{}, err
	}

	current, err := s.scores.ListCurrentBySubmission(ctx, submissionID)
	if err != nil {
		failSpan(span, err, "score_list_failed")
		return dto.GradingInterfaceResponse{}, err
	}

	scoreByAnswer := make(map[uint]models.QuestionScore, len(current))
	for _, score := range current {
		scoreByAnswer[score.AnswerID] = score
	}

	answersByQuestion := make(map[uint][]models.SubmittedAnswer)
	for _, answer := range answers {
		answersByQuestion[answer.QuestionID] = append(answersByQuestion[answer.QuestionID], answer)
	}

	// Answers to questions that are no longer listed on the activity still
	// count toward the submission, so they are appended after the ordered list.
	listed := make(map[uint]struct{}, len(questions))
	for _, question := range questions {
		listed[question.ID] = struct{}{}
	}
	orphaned := make([]uint, 0)
	for questionID := range answersByQuestion {
		if _, ok := listed[questionID]; !ok {
			orphaned = append(orphaned, questionID)
		}
	}
	sort.Slice(orphaned, func(i, j int) bool { return orphaned[i] < orphaned[j] })
	for _, questionID := range orphaned {
		question, err := s.questions.GetByID(ctx, questionID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				failSpan(span, err, "question_lookup_failed")
				return dto.GradingInterfaceResponse{}, err
			}
			question = models.Question{ID: questionID}
		}
		questions = append(questions, question)
	}

	items := make([]dto.GradingQuestionItem, 0, len(questions))
	for _, question := range questions {
		scoringType, err := s.scoringType(ctx, question.ID)
		if err != nil {
			failSpan(span, err, "scoring_config_lookup_failed")
			return dto.GradingInterfaceResponse{}, err
		}
		items = append(items, buildQuestionItem(question, scoringType, answersByQuestion[question.ID], scoreByAnswer))
	}

	return dto.GradingInterfaceResponse{
		SubmissionID: submission.ID,
		ActivityID:   submission.ActivityID,
		StudentID:    submission.StudentID,
		Status:       submission.Status,
		Questions:    items,
	}, nil
}

func (s *gradingService) scoringType(ctx context.Context, questionID uint) (string, error) {
	cfg, err := s.questions.GetScoringConfig(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ScoringTypeManual, nil
		}
		return "", err
	}
	return cfg.ScoringType, nil
}

func buildQuestionItem(question models.Question, scoringType string, answers []models.SubmittedAnswer, scores map[uint]models.QuestionScore) dto.GradingQuestionItem {
	item := dto.GradingQuestionItem{
		QuestionID:  question.ID,
		Position:    question.Position,
		Section:     question.Section,
		Title:       question.Title,
		ScoringType: scoringType,
		State:       dto.QuestionStateUnanswered,
		Answers:     make([]dto.GradingAnswerItem, 0, len(answers)),
	}
	if len(answers) == 0 {
		return item
	}

	gradedCount := 0
	for _, answer := range answers {
		row := dto.GradingAnswerItem{AnswerID: answer.ID, ElementID: answer.ElementID}
		if score, ok := scores[answer.ID]; ok {
			gradedCount++
			value, maxValue := score.Score, score.MaxScore
			row.Graded = true
			row.Score = &value
			row.MaxScore = &maxValue
			row.Version = score.Version
			row.GradedBy = score.GradedBy
			row.Feedback = score.Feedback
			item.Score += value
			item.MaxScore += maxValue
		}
		item.Answers = append(item.Answers, row)
	}

	item.State = dto.QuestionStatePending
	if gradedCount == len(answers) {
		item.State = dto.QuestionStateGraded
	}
	return item
}
