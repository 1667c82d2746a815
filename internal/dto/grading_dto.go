package dto

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// Per answer outcomes reported by bulk grading.
const (
	OutcomeGraded = "graded"
	OutcomeManual = "manual"
	OutcomeFailed = "failed"
)

// Per question states shown in the grading interface.
const (
	QuestionStateUnanswered = "unanswered"
	QuestionStatePending    = "pending"
	QuestionStateGraded     = "graded"
)

// ManualGradeRequest captures a grader's score for one answer. Score and
// MaxScore are pointers so that an explicit zero is accepted.
type ManualGradeRequest struct {
	Score          *float64           `json:"score" validate:"required"`
	MaxScore       *float64           `json:"max_score" validate:"required"`
	Feedback       string             `json:"feedback" validate:"omitempty,max=5000"`
	RubricID       *string            `json:"rubric_id" validate:"omitempty,min=1,max=128"`
	CriteriaScores map[string]float64 `json:"criteria_scores" validate:"omitempty,dive,keys,required,endkeys,gte=0"`
}

// QuestionScoreResponse serializes one version of an answer's score.
type QuestionScoreResponse struct {
	ID             uint                   `json:"id"`
	AnswerID       uint                   `json:"answer_id"`
	QuestionID     uint                   `json:"question_id"`
	SubmissionID   uint                   `json:"submission_id"`
	Score          float64                `json:"score"`
	MaxScore       float64                `json:"max_score"`
	RubricID       *string                `json:"rubric_id,omitempty"`
	CriteriaScores map[string]interface{} `json:"criteria_scores,omitempty"`
	Feedback       string                 `json:"feedback"`
	GradedBy       string                 `json:"graded_by"`
	GradedAt       time.Time              `json:"graded_at"`
	Version        int                    `json:"version"`
	IsCurrent      bool                   `json:"is_current"`
}

// NewQuestionScoreResponse converts a ledger row into its DTO.
func NewQuestionScoreResponse(score models.QuestionScore) QuestionScoreResponse {
	return QuestionScoreResponse{
		ID:             score.ID,
		AnswerID:       score.AnswerID,
		QuestionID:     score.QuestionID,
		SubmissionID:   score.SubmissionID,
		Score:          score.Score,
		MaxScore:       score.MaxScore,
		RubricID:       score.RubricID,
		CriteriaScores: objectFromJSON(score.CriteriaScores),
		Feedback:       score.Feedback,
		GradedBy:       score.GradedBy,
		GradedAt:       score.GradedAt,
		Version:        score.Version,
		IsCurrent:      score.IsCurrent,
	}
}

// NewQuestionScoreResponseSlice converts ledger rows preserving order.
func NewQuestionScoreResponseSlice(scores []models.QuestionScore) []QuestionScoreResponse {
	responses := make([]QuestionScoreResponse, 0, len(scores))
	for _, score := range scores {
		responses = append(responses, NewQuestionScoreResponse(score))
	}
	return responses
}

// FieldResultResponse is the per field breakdown of an auto grade.
type FieldResultResponse struct {
	FieldID  string                 `json:"field_id"`
	Kind     string                 `json:"kind"`
	Correct  bool                   `json:"correct"`
	Score    float64                `json:"score"`
	MaxScore float64                `json:"max_score"`
	Feedback string                 `json:"feedback,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// GradeResultResponse is the question level auto grade outcome.
type GradeResultResponse struct {
	Success       bool                  `json:"success"`
	Correct       bool                  `json:"correct"`
	Score         float64               `json:"score"`
	MaxScore      float64               `json:"max_score"`
	Percentage    float64               `json:"percentage"`
	ScoringMethod string                `json:"scoring_method,omitempty"`
	Feedback      string                `json:"feedback,omitempty"`
	Fields        []FieldResultResponse `json:"fields"`
}

// NewGradeResultResponse copies an engine result into the API shape.
func NewGradeResultResponse(result grading.Result) GradeResultResponse {
	fields := make([]FieldResultResponse, 0, len(result.FieldResults))
	for _, field := range result.FieldResults {
		fields = append(fields, FieldResultResponse{
			FieldID:  field.FieldID,
			Kind:     string(field.Kind),
			Correct:  field.Correct,
			Score:    field.Score,
			MaxScore: field.MaxScore,
			Feedback: field.Feedback,
			Details:  field.Details,
		})
	}

	return GradeResultResponse{
		Success:       result.Success,
		Correct:       result.Correct,
		Score:         result.Score,
		MaxScore:      result.MaxScore,
		Percentage:    result.Percentage,
		ScoringMethod: result.ScoringMethod,
		Feedback:      result.Feedback,
		Fields:        fields,
	}
}

// SubmissionTotalsResponse reports the derived totals of a submission.
type SubmissionTotalsResponse struct {
	SubmissionID     uint       `json:"submission_id"`
	Status           string     `json:"status"`
	TotalScore       float64    `json:"total_score"`
	MaxPossibleScore float64    `json:"max_possible_score"`
	Percentage       float64    `json:"percentage"`
	TotalAnswers     int        `json:"total_answers"`
	GradedCount      int        `json:"graded_count"`
	PendingCount     int        `json:"pending_count"`
	GradedAt         *time.Time `json:"graded_at,omitempty"`
	GradedBy         *string    `json:"graded_by,omitempty"`
}

// AutoGradeResponse reports the outcome of auto grading one answer.
type AutoGradeResponse struct {
	AnswerID              uint                      `json:"answer_id"`
	QuestionID            uint                      `json:"question_id"`
	Graded                bool                      `json:"graded"`
	RequiresManualGrading bool                      `json:"requires_manual_grading"`
	Reason                string                    `json:"reason,omitempty"`
	Result                *GradeResultResponse      `json:"result,omitempty"`
	Score                 *QuestionScoreResponse    `json:"score,omitempty"`
	Submission            *SubmissionTotalsResponse `json:"submission,omitempty"`
}

// ManualGradeResponse returns the recorded version and the refreshed totals.
type ManualGradeResponse struct {
	Score      QuestionScoreResponse    `json:"score"`
	Submission SubmissionTotalsResponse `json:"submission"`
}

// AnswerGradeOutcome is one row of a bulk grading report.
type AnswerGradeOutcome struct {
	AnswerID     uint    `json:"answer_id"`
	QuestionID   uint    `json:"question_id"`
	SubmissionID uint    `json:"submission_id"`
	Outcome      string  `json:"outcome"`
	Score        float64 `json:"score,omitempty"`
	MaxScore     float64 `json:"max_score,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// BulkGradeResponse summarises a submission or question wide grading run.
type BulkGradeResponse struct {
	SubmissionID *uint                      `json:"submission_id,omitempty"`
	QuestionID   *uint                      `json:"question_id,omitempty"`
	Processed    int                        `json:"processed"`
	Graded       int                        `json:"graded"`
	Manual       int                        `json:"manual"`
	Failed       int                        `json:"failed"`
	Results      []AnswerGradeOutcome       `json:"results"`
	Submissions  []SubmissionTotalsResponse `json:"submissions"`
}

// PendingAnswerResponse identifies an answer that still needs a score.
type PendingAnswerResponse struct {
	AnswerID   uint   `json:"answer_id"`
	QuestionID uint   `json:"question_id"`
	ElementID  string `json:"element_id,omitempty"`
}

// ScoreSummaryResponse is the score breakdown of a submission.
type ScoreSummaryResponse struct {
	SubmissionID     uint                    `json:"submission_id"`
	ActivityID       uint                    `json:"activity_id"`
	StudentID        uint                    `json:"student_id"`
	Status           string                  `json:"status"`
	TotalScore       float64                 `json:"total_score"`
	MaxPossibleScore float64                 `json:"max_possible_score"`
	Percentage       float64                 `json:"percentage"`
	TotalAnswers     int                     `json:"total_answers"`
	GradedCount      int                     `json:"graded_count"`
	PendingCount     int                     `json:"pending_count"`
	GradedAt         *time.Time              `json:"graded_at,omitempty"`
	GradedBy         *string                 `json:"graded_by,omitempty"`
	Scores           []QuestionScoreResponse `json:"scores"`
	Pending          []PendingAnswerResponse `json:"pending"`
	CacheHit         bool                    `json:"cache_hit"`
}

// GradingAnswerItem is one answer row of the grading interface.
type GradingAnswerItem struct {
	AnswerID  uint     `json:"answer_id"`
	ElementID string   `json:"element_id,omitempty"`
	Graded    bool     `json:"graded"`
	Score     *float64 `json:"score,omitempty"`
	MaxScore  *float64 `json:"max_score,omitempty"`
	Version   int      `json:"version,omitempty"`
	GradedBy  string   `json:"graded_by,omitempty"`
	Feedback  string   `json:"feedback,omitempty"`
}

// GradingQuestionItem groups a question with the submission's answers to it.
type GradingQuestionItem struct {
	QuestionID  uint                `json:"question_id"`
	Position    int                 `json:"position"`
	Section     string              `json:"section,omitempty"`
	Title       string              `json:"title"`
	ScoringType string              `json:"scoring_type"`
	State       string              `json:"state"`
	Score       float64             `json:"score"`
	MaxScore    float64             `json:"max_score"`
	Answers     []GradingAnswerItem `json:"answers"`
}

// GradingInterfaceResponse lists every question of the activity in order,
// including ones the student never answered.
type GradingInterfaceResponse struct {
	SubmissionID uint                  `json:"submission_id"`
	ActivityID   uint                  `json:"activity_id"`
	StudentID    uint                  `json:"student_id"`
	Status       string                `json:"status"`
	Questions    []GradingQuestionItem `json:"questions"`
}

// ScoringConfigRequest replaces the scoring configuration of a question.
// Nested option and point keys keep the camelCase names of stored configurations.
type ScoringConfigRequest struct {
	ScoringType      string                         `json:"scoring_type" validate:"required,oneof=auto manual hybrid"`
	Weight           *float64                       `json:"weight" validate:"omitempty,gte=0"`
	RubricReference  *string                        `json:"rubric_reference" validate:"omitempty,max=128"`
	ExpectedAnswers  map[string]interface{}         `json:"expected_answers" validate:"omitempty,dive,keys,required,max=128,endkeys"`
	ExpectedKinds    map[string]string              `json:"expected_kinds" validate:"omitempty,dive,keys,required,endkeys,oneof=boolean numeric text multi_select essay"`
	AutoGradeOptions *grading.AutoGradeOptions      `json:"auto_grade_options"`
	FieldScores      map[string]grading.FieldPoints `json:"field_scores"`
}

// ScoringConfigResponse serializes a stored scoring configuration.
type ScoringConfigResponse struct {
	QuestionID       uint                           `json:"question_id"`
	ScoringType      string                         `json:"scoring_type"`
	Weight           float64                        `json:"weight"`
	RubricReference  *string                        `json:"rubric_reference,omitempty"`
	ExpectedAnswers  map[string]interface{}         `json:"expected_answers"`
	ExpectedKinds    map[string]string              `json:"expected_kinds"`
	AutoGradeOptions grading.AutoGradeOptions       `json:"auto_grade_options"`
	FieldScores      map[string]grading.FieldPoints `json:"field_scores"`
	UpdatedBy        string                         `json:"updated_by,omitempty"`
	UpdatedAt        time.Time                      `json:"updated_at"`
}

// NewScoringConfigResponse decodes the JSON columns of a configuration.
// Columns that fail to decode are reported empty.
func NewScoringConfigResponse(cfg models.ScoringConfiguration) ScoringConfigResponse {
	response := ScoringConfigResponse{
		QuestionID:      cfg.QuestionID,
		ScoringType:     cfg.ScoringType,
		Weight:          cfg.Weight,
		RubricReference: cfg.RubricReference,
		ExpectedAnswers: objectFromJSON(cfg.ExpectedAnswers),
		ExpectedKinds:   map[string]string{},
		FieldScores:     map[string]grading.FieldPoints{},
		UpdatedBy:       cfg.UpdatedBy,
		UpdatedAt:       cfg.UpdatedAt,
	}

	if len(cfg.ExpectedKinds) > 0 {
		_ = json.Unmarshal(cfg.ExpectedKinds, &response.ExpectedKinds)
	}
	if len(cfg.AutoGradeOptions) > 0 {
		_ = json.Unmarshal(cfg.AutoGradeOptions, &response.AutoGradeOptions)
	}
	if len(cfg.FieldScores) > 0 {
		_ = json.Unmarshal(cfg.FieldScores, &response.FieldScores)
	}

	return response
}

func objectFromJSON(data datatypes.JSON) map[string]interface{} {
	result := map[string]interface{}{}
	if len(data) == 0 {
		return result
	}
	if err := json.Unmarshal(data, &result); err != nil || result == nil {
		return map[string]interface{}{}
	}
	return result
}

// Live grading event types.
const (
	EventScoreRecorded          = "score_recorded"
	EventSubmissionRecalculated = "submission_recalculated"
	EventSubmissionGraded       = "submission_graded"
)

// GradingEvent is pushed to live feed subscribers and the event bus.
type GradingEvent struct {
	ID           string                    `json:"id"`
	Type         string                    `json:"type"`
	SubmissionID uint                      `json:"submission_id"`
	AnswerID     uint                      `json:"answer_id,omitempty"`
	QuestionID   uint                      `json:"question_id,omitempty"`
	Score        *QuestionScoreResponse    `json:"score,omitempty"`
	Totals       *SubmissionTotalsResponse `json:"totals,omitempty"`
	OccurredAt   time.Time                 `json:"occurred_at"`
}
