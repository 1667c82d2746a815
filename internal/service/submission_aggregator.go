package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/observability"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

// SubmissionAggregator derives submission totals from the current question scores.
type SubmissionAggregator interface {
	// Recalculate recomputes and persists the totals of a submission. graderID
	// is stamped when this call moves the submission to graded; pass an empty
	// string for automatic grading.
	Recalculate(ctx context.Context, submissionID uint, graderID string) (dto.SubmissionTotalsResponse, error)
}

type submissionAggregator struct {
	submissions  repository.SubmissionRepository
	cache        *redis.Client
	events       GradingEventStream
	systemGrader string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewSubmissionAggregator constructs the aggregator. cache and events may be nil.
func NewSubmissionAggregator(
	submissions repository.SubmissionRepository,
	cache *redis.Client,
	events GradingEventStream,
	systemGrader string,
	logger zerolog.Logger,
) SubmissionAggregator {
	if systemGrader == "" {
		systemGrader = "system"
	}

	return &submissionAggregator{
		submissions:  submissions,
		cache:        cache,
		events:       events,
		systemGrader: systemGrader,
		logger:       logger.With().Str("component", "submission_aggregator").Logger(),
		now:          time.Now,
	}
}

type submissionTotals struct {
	TotalScore       float64
	MaxPossibleScore float64
	Percentage       float64
	TotalAnswers     int
	GradedCount      int
	PendingCount     int
}

// computeTotals sums the current scores. Pending never goes below zero even if
// scores outnumber the active answers.
func computeTotals(current []models.QuestionScore, totalAnswers int) submissionTotals {
	totals := submissionTotals{TotalAnswers: totalAnswers, GradedCount: len(current)}
	for _, score := range current {
		totals.TotalScore += score.Score
		totals.MaxPossibleScore += score.MaxScore
	}
	totals.PendingCount = max(totals.TotalAnswers-totals.GradedCount, 0)
	if totals.MaxPossibleScore > 0 {
		totals.Percentage = totals.TotalScore / totals.MaxPossibleScore * 100
	}
	return totals
}

// deriveAggregate builds the row update for a locked submission. Status is only
// written when the submission moves to graded, so a status set elsewhere is never
// pulled backward.
func (a *submissionAggregator) deriveAggregate(state repository.SubmissionState, totals submissionTotals, graderID string) (repository.SubmissionAggregate, bool) {
	aggregate := repository.SubmissionAggregate{
		TotalScore:       totals.TotalScore,
		MaxPossibleScore: totals.MaxPossibleScore,
		Percentage:       totals.Percentage,
	}

	submission := state.Submission
	if totals.TotalAnswers == 0 || totals.PendingCount > 0 || submission.IsGraded() {
		return aggregate, false
	}

	gradedAt := a.now().UTC()
	aggregate.Status = models.SubmissionStatusGraded
	aggregate.GradedAt = &gradedAt
	if submission.GradedBy == nil {
		grader := graderID
		if grader == "" {
			grader = a.systemGrader
		}
		aggregate.GradedBy = &grader
	}
	return aggregate, true
}

func (a *submissionAggregator) Recalculate(ctx context.Context, submissionID uint, graderID string) (dto.SubmissionTotalsResponse, error) {
	start := time.Now()
	defer func() {
		observability.GradingDuration().WithLabelValues("recalculate").Observe(time.Since(start).Seconds())
	}()

	var (
		totals       submissionTotals
		transitioned bool
	)
	state, aggregate, err := a.submissions.Recalculate(ctx, submissionID, func(state repository.SubmissionState) repository.SubmissionAggregate {
		totals = computeTotals(state.Current, int(state.AnswerCount))
		var update repository.SubmissionAggregate
		update, transitioned = a.deriveAggregate(state, totals, graderID)
		return update
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionTotalsResponse{}, ErrSubmissionNotFound
		}
		a.logger.Error().Err(err).Uint("submission_id", submissionID).Msg("failed to persist submission totals")
		return dto.SubmissionTotalsResponse{}, err
	}

	status := state.Submission.Status
	gradedAt := state.Submission.GradedAt
	gradedBy := state.Submission.GradedBy
	if transitioned {
		status = aggregate.Status
		gradedAt = aggregate.GradedAt
		if aggregate.GradedBy != nil {
			gradedBy = aggregate.GradedBy
		}
	}

	response := dto.SubmissionTotalsResponse{
		SubmissionID:     submissionID,
		Status:           status,
		TotalScore:       totals.TotalScore,
		MaxPossibleScore: totals.MaxPossibleScore,
		Percentage:       totals.Percentage,
		TotalAnswers:     totals.TotalAnswers,
		GradedCount:      totals.GradedCount,
		PendingCount:     totals.PendingCount,
		GradedAt:         gradedAt,
		GradedBy:         gradedBy,
	}

	a.invalidateSummary(ctx, submissionID)

	logEvent := a.logger.Debug()
	if transitioned {
		observability.SubmissionsGraded().Inc()
		logEvent = a.logger.Info()
	}
	logEvent.
		Uint("submission_id", submissionID).
		Float64("total_score", totals.TotalScore).
		Float64("max_possible_score", totals.MaxPossibleScore).
		Int("pending", totals.PendingCount).
		Bool("transitioned", transitioned).
		Msg("submission recalculated")

	if a.events != nil {
		a.events.Publish(ctx, dto.GradingEvent{
			Type:         dto.EventSubmissionRecalculated,
			SubmissionID: submissionID,
			Totals:       &response,
		})
		if transitioned {
			a.events.Publish(ctx, dto.GradingEvent{
				Type:         dto.EventSubmissionGraded,
				SubmissionID: submissionID,
				Totals:       &response,
			})
		}
	}

	return response, nil
}

func (a *submissionAggregator) invalidateSummary(ctx context.Context, submissionID uint) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Del(ctx, summaryCacheKey(submissionID)).Err(); err != nil {
		a.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to invalidate score summary cache")
	}
}

func summaryCacheKey(submissionID uint) string {
	return fmt.Sprintf("grading:summary:submission:%d", submissionID)
}
