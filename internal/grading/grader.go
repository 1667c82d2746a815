package grading

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ScoringType tells the orchestrator whether a question may be auto graded.
type ScoringType string

const (
	ScoringAuto   ScoringType = "auto"
	ScoringManual ScoringType = "manual"
	ScoringHybrid ScoringType = "hybrid"
)

// Scoring methods reported on a Result.
const (
	MethodFieldBased = "field-based"
	MethodStandard   = "standard"
)

// Config is the decoded scoring configuration of one question.
type Config struct {
	ScoringType     ScoringType
	ExpectedAnswers map[string]interface{}
	ExpectedKinds   map[string]AnswerKind
	Options         AutoGradeOptions
	FieldScores     map[string]FieldPoints
}

// FieldBased reports whether any field level point configuration exists.
func (c Config) FieldBased() bool {
	return len(c.FieldScores) > 0
}

// Result is the question level outcome of GradeResponse.
type Result struct {
	Success       bool          `json:"success"`
	Correct       bool          `json:"correct"`
	Score         float64       `json:"score"`
	MaxScore      float64       `json:"maxScore"`
	Percentage    float64       `json:"percentage"`
	FieldResults  []FieldResult `json:"fieldResults"`
	Feedback      string        `json:"feedback"`
	ScoringMethod string        `json:"scoringMethod"`
}

// GradeResponse scores every expected answer field of a question. It fails
// with Success=false only when nothing is configured to grade against, which
// means the question needs a human.
func GradeResponse(answers map[string]interface{}, cfg Config) Result {
	if len(cfg.ExpectedAnswers) == 0 {
		return Result{
			Success:  false,
			Feedback: "No expected answers configured; manual grading required",
		}
	}

	fieldBased := cfg.FieldBased()
	method := MethodStandard
	if fieldBased {
		method = MethodFieldBased
	}

	fieldIDs := make([]string, 0, len(cfg.ExpectedAnswers))
	for id := range cfg.ExpectedAnswers {
		fieldIDs = append(fieldIDs, id)
	}
	sort.Strings(fieldIDs)

	result := Result{
		Success:       true,
		Correct:       true,
		ScoringMethod: method,
		FieldResults:  make([]FieldResult, 0, len(fieldIDs)),
	}
	feedback := make([]string, 0, len(fieldIDs))

	for _, fieldID := range fieldIDs {
		expected := ParseExpected(cfg.ExpectedAnswers[fieldID], cfg.ExpectedKinds[fieldID])
		student := answers[fieldID]

		var points *FieldPoints
		if fieldBased {
			fp, ok := cfg.FieldScores[fieldID]
			if !ok {
				fp = DefaultFieldPoints
			}
			points = &fp
		}

		match := Match(student, expected, cfg.Options)
		field := ScoreField(fieldID, student, match, points)
		field.Kind = expected.Kind

		result.FieldResults = append(result.FieldResults, field)
		result.Score += field.Score
		result.MaxScore += field.MaxScore
		result.Correct = result.Correct && field.Correct
		if field.Feedback != "" {
			feedback = append(feedback, fmt.Sprintf("%s: %s", fieldID, field.Feedback))
		}
	}

	result.Score = math.Max(0, result.Score)
	if result.MaxScore > 0 {
		result.Percentage = result.Score / result.MaxScore * 100
	}
	result.Feedback = strings.Join(feedback, "; ")

	return result
}
