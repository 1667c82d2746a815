package grading

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}

func TestMatchText(t *testing.T) {
	tests := []struct {
		name     string
		student  interface{}
		expected string
		opts     AutoGradeOptions
		correct  bool
		score    float64
	}{
		{name: "exact case insensitive", student: "paris", expected: "Paris", opts: AutoGradeOptions{MatchingStrategy: StrategyExact}, correct: true, score: 1},
		{name: "exact case sensitive mismatch", student: "paris", expected: "Paris", opts: AutoGradeOptions{MatchingStrategy: StrategyExact, CaseSensitive: true}, correct: false, score: 0},
		{name: "default strategy is exact", student: " Paris  ", expected: "paris", correct: true, score: 1},
		{name: "punctuation ignored on request", student: "Paris!", expected: "paris", opts: AutoGradeOptions{IgnorePunctuation: true}, correct: true, score: 1},
		{name: "fuzzy above threshold", student: "photosynthesys", expected: "photosynthesis", opts: AutoGradeOptions{MatchingStrategy: StrategyFuzzy}, correct: true, score: 1},
		{name: "fuzzy below threshold", student: "respiration", expected: "photosynthesis", opts: AutoGradeOptions{MatchingStrategy: StrategyFuzzy}, correct: false, score: 0},
		{name: "fuzzy custom threshold", student: "abd", expected: "abc", opts: AutoGradeOptions{MatchingStrategy: StrategyFuzzy, Tolerance: floatPtr(0.6)}, correct: true, score: 1},
		{name: "contains student inside expected", student: "mitochondria", expected: "the mitochondria", opts: AutoGradeOptions{MatchingStrategy: StrategyContains}, correct: true, score: 1},
		{name: "contains expected inside student", student: "it is the mitochondria", expected: "mitochondria", opts: AutoGradeOptions{MatchingStrategy: StrategyContains}, correct: true, score: 1},
		{name: "non string student", student: 12.0, expected: "twelve", correct: false, score: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MatchText(tc.student, tc.expected, tc.opts)
			require.Equal(t, tc.correct, got.Correct)
			require.InDelta(t, tc.score, got.Score, 1e-9)
			require.Equal(t, 1.0, got.MaxScore)
		})
	}
}

func TestMatchTextFuzzyPartialCredit(t *testing.T) {
	got := MatchText("abd", "abc", AutoGradeOptions{MatchingStrategy: StrategyFuzzy, PartialCredit: true})
	require.False(t, got.Correct)
	require.InDelta(t, 0.667, got.Score, 0.001)
	require.InDelta(t, 0.667, got.Details["similarity"].(float64), 0.001)
}

func TestMatchNumeric(t *testing.T) {
	tests := []struct {
		name      string
		student   interface{}
		expected  float64
		specTol   *float64
		opts      AutoGradeOptions
		correct   bool
		score     float64
		isInvalid bool
	}{
		{name: "within spec tolerance", student: 96.0, expected: 100, specTol: floatPtr(5), correct: true, score: 1},
		{name: "outside spec tolerance", student: 94.0, expected: 100, specTol: floatPtr(5), correct: false, score: 0},
		{name: "string parsed", student: " 3.14 ", expected: 3.14, correct: true, score: 1},
		{name: "default tolerance is zero", student: 3.15, expected: 3.14, correct: false, score: 0},
		{name: "option tolerance", student: 3.15, expected: 3.14, opts: AutoGradeOptions{Tolerance: floatPtr(0.05)}, correct: true, score: 1},
		{name: "spec tolerance wins over option", student: 3.15, expected: 3.14, specTol: floatPtr(0), opts: AutoGradeOptions{Tolerance: floatPtr(0.05)}, correct: false, score: 0},
		{name: "partial credit relative error", student: 90.0, expected: 100, opts: AutoGradeOptions{PartialCredit: true}, correct: false, score: 0.9},
		{name: "partial credit floors at zero", student: 500.0, expected: 100, opts: AutoGradeOptions{PartialCredit: true}, correct: false, score: 0},
		{name: "unparseable is incorrect", student: "ninety", expected: 90, correct: false, score: 0, isInvalid: true},
		{name: "array is incorrect", student: []interface{}{"1"}, expected: 1, correct: false, score: 0, isInvalid: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MatchNumeric(tc.student, tc.expected, tc.specTol, tc.opts)
			require.Equal(t, tc.correct, got.Correct)
			require.InDelta(t, tc.score, got.Score, 1e-9)
			require.Equal(t, 1.0, got.MaxScore)
			if tc.isInvalid {
				require.Equal(t, true, got.Details["invalid"])
			}
		})
	}
}

func TestMatchMultiSelect(t *testing.T) {
	expected := []string{"a", "b", "c"}

	tests := []struct {
		name     string
		student  interface{}
		opts     AutoGradeOptions
		correct  bool
		score    float64
		maxScore float64
	}{
		{name: "all correct", student: []interface{}{"c", "b", "a"}, correct: true, score: 3, maxScore: 3},
		{name: "missing one without partial credit", student: []interface{}{"a", "b"}, correct: false, score: 0, maxScore: 3},
		{name: "missing one with partial credit", student: []interface{}{"a", "b"}, opts: AutoGradeOptions{PartialCredit: true, PointsPerCorrect: 1}, correct: false, score: 2, maxScore: 3},
		{name: "extra selection halves", student: []interface{}{"a", "b", "c", "d"}, opts: AutoGradeOptions{PartialCredit: true}, correct: false, score: 2.5, maxScore: 3},
		{name: "all wrong floors at zero", student: []interface{}{"x", "y", "z"}, opts: AutoGradeOptions{PartialCredit: true}, correct: false, score: 0, maxScore: 3},
		{name: "points per correct scales", student: []interface{}{"a"}, opts: AutoGradeOptions{PartialCredit: true, PointsPerCorrect: 2}, correct: false, score: 2, maxScore: 6},
		{name: "case insensitive by default", student: []interface{}{"A", "B", "C"}, correct: true, score: 3, maxScore: 3},
		{name: "single string selection", student: "a", opts: AutoGradeOptions{PartialCredit: true}, correct: false, score: 1, maxScore: 3},
		{name: "duplicates counted once", student: []interface{}{"a", "a", "b", "c"}, correct: true, score: 3, maxScore: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MatchMultiSelect(tc.student, expected, tc.opts)
			require.Equal(t, tc.correct, got.Correct)
			require.InDelta(t, tc.score, got.Score, 1e-9)
			require.InDelta(t, tc.maxScore, got.MaxScore, 1e-9)
			require.LessOrEqual(t, got.Score, got.MaxScore)
		})
	}
}

func TestMatchBoolean(t *testing.T) {
	require.True(t, MatchBoolean(true, true).Correct)
	require.True(t, MatchBoolean("on", true).Correct)
	require.True(t, MatchBoolean(false, false).Correct)
	require.False(t, MatchBoolean("false", true).Correct)

	invalid := MatchBoolean("maybe", true)
	require.False(t, invalid.Correct)
	require.Equal(t, 0.0, invalid.Score)
	require.Equal(t, 1.0, invalid.MaxScore)
}

func TestMatchEssay(t *testing.T) {
	rubric := EssayRubric{
		Keywords:        []string{"chlorophyll", "sunlight", "glucose"},
		RequiredPhrases: []string{"carbon dioxide"},
		MinLength:       intPtr(5),
		MaxLength:       intPtr(50),
	}

	full := MatchEssay("Plants use sunlight and chlorophyll to turn carbon dioxide and water into glucose.", rubric, AutoGradeOptions{})
	require.True(t, full.Correct)
	require.Equal(t, 5.0, full.Score)
	require.Equal(t, 5.0, full.MaxScore)

	partial := MatchEssay("Sunlight makes plants grow tall and green.", rubric, AutoGradeOptions{})
	require.False(t, partial.Correct)
	require.Equal(t, 2.0, partial.Score)
	require.Equal(t, 5.0, partial.MaxScore)

	oneBound := MatchEssay("glucose", EssayRubric{Keywords: []string{"glucose"}, MinLength: intPtr(10)}, AutoGradeOptions{})
	require.True(t, oneBound.Correct)
	require.Equal(t, 1.0, oneBound.MaxScore)

	empty := MatchEssay("anything at all", EssayRubric{}, AutoGradeOptions{})
	require.False(t, empty.Correct)
	require.Equal(t, 0.0, empty.Score)
	require.Equal(t, 1.0, empty.MaxScore)
}

func TestMatchEssaySkipsBlankCriteria(t *testing.T) {
	rubric := EssayRubric{
		Keywords:        []string{"glucose", "", "!!!"},
		RequiredPhrases: []string{"  "},
	}

	result := MatchEssay("Plants store glucose.", rubric, AutoGradeOptions{IgnorePunctuation: true})
	require.True(t, result.Correct)
	require.Equal(t, 1.0, result.Score)
	require.Equal(t, 1.0, result.MaxScore)
	require.Equal(t, []string{"glucose"}, result.Details["keywordsFound"])
	require.NotContains(t, result.Details, "phrasesFound")
}

func TestInferKind(t *testing.T) {
	tests := []struct {
		name     string
		expected interface{}
		want     AnswerKind
	}{
		{name: "boolean", expected: true, want: KindBoolean},
		{name: "number", expected: 42.0, want: KindNumeric},
		{name: "number with tolerance", expected: map[string]interface{}{"value": 100.0, "tolerance": 5.0}, want: KindNumeric},
		{name: "array", expected: []interface{}{"a", "b"}, want: KindMultiSelect},
		{name: "essay keywords", expected: map[string]interface{}{"keywords": []interface{}{"x"}}, want: KindEssay},
		{name: "essay length only", expected: map[string]interface{}{"minLength": 10.0}, want: KindEssay},
		{name: "essay wins over value", expected: map[string]interface{}{"value": 1.0, "requiredPhrases": []interface{}{"x"}}, want: KindEssay},
		{name: "string", expected: "Paris", want: KindText},
		{name: "unknown object", expected: map[string]interface{}{"foo": "bar"}, want: KindText},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, InferKind(tc.expected))
		})
	}
}

func TestParseExpectedHonoursStoredKind(t *testing.T) {
	// A numeric looking string stored with an explicit numeric kind.
	expected := ParseExpected("42", KindNumeric)
	require.Equal(t, KindNumeric, expected.Kind)
	require.Equal(t, 42.0, expected.Number)

	legacy := ParseExpected(map[string]interface{}{"value": 100.0, "tolerance": 5.0}, "")
	require.Equal(t, KindNumeric, legacy.Kind)
	require.Equal(t, 100.0, legacy.Number)
	require.NotNil(t, legacy.Tolerance)
	require.Equal(t, 5.0, *legacy.Tolerance)
}

func TestMatchTextFuzzyThresholdFallback(t *testing.T) {
	opts := AutoGradeOptions{MatchingStrategy: StrategyFuzzy, FuzzyThreshold: 0.6}
	require.True(t, MatchText("abd", "abc", opts).Correct)

	opts.Tolerance = floatPtr(0.9)
	require.False(t, MatchText("abd", "abc", opts).Correct)
}
