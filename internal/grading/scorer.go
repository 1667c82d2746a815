package grading

import (
	"math"
	"strings"
)

// FieldPoints is the instructor supplied point model for one field.
// Penalties are stored as values <= 0. The earned amount is floored at zero,
// so a configured penalty can never subtract from a total.
type FieldPoints struct {
	Points       float64 `json:"points"`
	WrongPenalty float64 `json:"wrongPenalty"`
	BlankPenalty float64 `json:"blankPenalty"`
}

// DefaultFieldPoints applies to fields missing from a field based configuration.
var DefaultFieldPoints = FieldPoints{Points: 1}

// FieldResult is the scored outcome of one expected answer field.
type FieldResult struct {
	FieldID  string                 `json:"fieldId"`
	Kind     AnswerKind             `json:"kind"`
	Correct  bool                   `json:"correct"`
	Score    float64                `json:"score"`
	MaxScore float64                `json:"maxScore"`
	Feedback string                 `json:"feedback"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// ScoreField converts a matcher verdict into earned points. When points is nil
// the matcher's own score and max score pass through unchanged.
func ScoreField(fieldID string, student interface{}, match MatchResult, points *FieldPoints) FieldResult {
	result := FieldResult{
		FieldID:  fieldID,
		Correct:  match.Correct,
		Score:    match.Score,
		MaxScore: match.MaxScore,
		Feedback: match.Feedback,
		Details:  match.Details,
	}
	if points != nil {
		result.MaxScore = math.Max(0, points.Points)
	}

	if IsBlank(student) {
		result.Correct = false
		result.Score = 0
		if points != nil {
			result.Score = math.Max(0, points.BlankPenalty)
		}
		result.Feedback = "No answer provided"
		result.Details = map[string]interface{}{"missing": true}
		return clampField(result)
	}

	if points != nil {
		if match.Correct {
			result.Score = result.MaxScore
		} else {
			result.Score = math.Max(0, points.WrongPenalty)
		}
	}

	return clampField(result)
}

func clampField(result FieldResult) FieldResult {
	if result.Score < 0 || math.IsNaN(result.Score) {
		result.Score = 0
	}
	if result.Score > result.MaxScore {
		result.Score = result.MaxScore
	}
	return result
}

// IsBlank reports whether a student value counts as not answered.
func IsBlank(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	default:
		return false
	}
}
