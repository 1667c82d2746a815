package grading

import (
	"fmt"
	"math"
	"strings"
)

// MatchingStrategy selects how text answers are compared.
type MatchingStrategy string

const (
	StrategyExact    MatchingStrategy = "exact"
	StrategyFuzzy    MatchingStrategy = "fuzzy"
	StrategyContains MatchingStrategy = "contains"
)

const (
	defaultFuzzyThreshold   = 0.8
	defaultNumericTolerance = 0.0
)

// AutoGradeOptions carries the question level matcher configuration.
type AutoGradeOptions struct {
	MatchingStrategy  MatchingStrategy `json:"matchingStrategy,omitempty"`
	CaseSensitive     bool             `json:"caseSensitive,omitempty"`
	IgnorePunctuation bool             `json:"ignorePunctuation,omitempty"`
	Tolerance         *float64         `json:"tolerance,omitempty"`
	PartialCredit     bool             `json:"partialCredit,omitempty"`
	PointsPerCorrect  float64          `json:"pointsPerCorrect,omitempty"`
	// FuzzyThreshold replaces the built in fuzzy threshold when Tolerance is unset.
	FuzzyThreshold    float64          `json:"-"`
}

func (o AutoGradeOptions) tolerance(fallback float64) float64 {
	if o.Tolerance != nil {
		return *o.Tolerance
	}
	return fallback
}

func (o AutoGradeOptions) pointsPerCorrect() float64 {
	if o.PointsPerCorrect > 0 {
		return o.PointsPerCorrect
	}
	return 1
}

func (o AutoGradeOptions) textNormalization() NormalizeOptions {
	return NormalizeOptions{
		CaseSensitive:     o.CaseSensitive,
		RemoveWhitespace:  true,
		RemovePunctuation: o.IgnorePunctuation,
	}
}

// MatchResult is the verdict of a single matcher. Score never exceeds MaxScore.
type MatchResult struct {
	Correct  bool                   `json:"correct"`
	Score    float64                `json:"score"`
	MaxScore float64                `json:"maxScore"`
	Feedback string                 `json:"feedback"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Match dispatches a student value to the matcher for the expected answer kind.
func Match(student interface{}, expected ExpectedAnswer, opts AutoGradeOptions) MatchResult {
	switch expected.Kind {
	case KindBoolean:
		return MatchBoolean(student, expected.Bool)
	case KindEssay:
		return MatchEssay(student, expected.Essay, opts)
	case KindNumeric:
		return MatchNumeric(student, expected.Number, expected.Tolerance, opts)
	case KindMultiSelect:
		return MatchMultiSelect(student, expected.Options, opts)
	default:
		return MatchText(student, expected.Text, opts)
	}
}

// MatchText compares free text using the exact, fuzzy or contains strategy.
func MatchText(student interface{}, expected string, opts AutoGradeOptions) MatchResult {
	normOpts := opts.textNormalization()
	got := Normalize(student, normOpts)
	want := Normalize(expected, normOpts)

	result := MatchResult{MaxScore: 1, Details: map[string]interface{}{}}
	strategy := opts.MatchingStrategy
	if strategy == "" {
		strategy = StrategyExact
	}
	result.Details["strategy"] = string(strategy)

	switch strategy {
	case StrategyFuzzy:
		similarity := Similarity(got, want)
		fallback := defaultFuzzyThreshold
		if opts.FuzzyThreshold > 0 {
			fallback = opts.FuzzyThreshold
		}
		threshold := opts.tolerance(fallback)
		result.Correct = similarity >= threshold
		result.Details["similarity"] = similarity
		result.Details["threshold"] = threshold
		switch {
		case opts.PartialCredit:
			result.Score = similarity
		case result.Correct:
			result.Score = 1
		}
		if result.Correct {
			result.Feedback = fmt.Sprintf("Close enough (%.0f%% similar)", similarity*100)
		} else {
			result.Feedback = fmt.Sprintf("Incorrect (%.0f%% similar)", similarity*100)
		}
		if similarity == 1 {
			result.Feedback = "Correct"
		}
		return result
	case StrategyContains:
		result.Correct = strings.Contains(got, want) || strings.Contains(want, got)
	default:
		result.Correct = got == want
	}

	if result.Correct {
		result.Score = 1
		result.Feedback = "Correct"
	} else {
		result.Feedback = "Incorrect"
	}
	return result
}

// MatchNumeric compares numbers within an absolute tolerance. A tolerance on
// the expected answer itself wins over the option level tolerance.
func MatchNumeric(student interface{}, expected float64, specTolerance *float64, opts AutoGradeOptions) MatchResult {
	result := MatchResult{MaxScore: 1, Details: map[string]interface{}{"expected": expected}}

	got, ok := toFloat(student)
	if !ok || math.IsNaN(got) || math.IsInf(got, 0) {
		result.Feedback = "Invalid numeric value"
		result.Details["invalid"] = true
		return result
	}

	tolerance := opts.tolerance(defaultNumericTolerance)
	if specTolerance != nil {
		tolerance = *specTolerance
	}
	diff := math.Abs(got - expected)
	result.Details["submitted"] = got
	result.Details["tolerance"] = tolerance
	result.Details["difference"] = diff

	if diff <= tolerance {
		result.Correct = true
		result.Score = 1
		result.Feedback = "Correct"
		return result
	}

	result.Feedback = fmt.Sprintf("Incorrect (off by %g)", diff)
	if opts.PartialCredit {
		relativeError := diff
		if expected != 0 {
			relativeError = diff / math.Abs(expected)
		}
		result.Score = math.Max(0, 1-relativeError)
		result.Details["relativeError"] = relativeError
	}
	return result
}

// MatchMultiSelect compares a set of selections against the expected set.
func MatchMultiSelect(student interface{}, expected []string, opts AutoGradeOptions) MatchResult {
	normOpts := NormalizeOptions{CaseSensitive: opts.CaseSensitive}
	want := normalizeSet(expected, normOpts)
	got := normalizeSet(toStringSlice(student), normOpts)

	wanted := make(map[string]struct{}, len(want))
	for _, item := range want {
		wanted[item] = struct{}{}
	}
	selected := make(map[string]struct{}, len(got))
	for _, item := range got {
		selected[item] = struct{}{}
	}

	correctCount, incorrectCount, missedCount := 0, 0, 0
	for _, item := range got {
		if _, ok := wanted[item]; ok {
			correctCount++
		} else {
			incorrectCount++
		}
	}
	for _, item := range want {
		if _, ok := selected[item]; !ok {
			missedCount++
		}
	}

	perCorrect := opts.pointsPerCorrect()
	result := MatchResult{
		MaxScore: float64(len(want)) * perCorrect,
		Details: map[string]interface{}{
			"correctCount":   correctCount,
			"incorrectCount": incorrectCount,
			"missedCount":    missedCount,
		},
	}
	result.Correct = correctCount == len(want) && incorrectCount == 0

	switch {
	case opts.PartialCredit:
		earned := float64(correctCount)*perCorrect - float64(incorrectCount)*perCorrect*0.5
		result.Score = math.Min(result.MaxScore, math.Max(0, earned))
	case result.Correct:
		result.Score = result.MaxScore
	}

	if result.Correct {
		result.Feedback = "Correct"
	} else {
		result.Feedback = fmt.Sprintf("%d of %d correct selections, %d incorrect", correctCount, len(want), incorrectCount)
	}
	return result
}

// MatchBoolean grades a checkbox or radio truth value.
func MatchBoolean(student interface{}, expected bool) MatchResult {
	result := MatchResult{MaxScore: 1, Details: map[string]interface{}{"expected": expected}}

	got, ok := toBool(student)
	if !ok {
		result.Feedback = "Invalid selection"
		result.Details["invalid"] = true
		return result
	}

	result.Correct = got == expected
	if result.Correct {
		result.Score = 1
		result.Feedback = "Correct"
	} else {
		result.Feedback = "Incorrect"
	}
	return result
}

// matchNeedles returns the needles found in text and how many needles were
// gradable. Needles that normalize to nothing are not counted.
func matchNeedles(text string, needles []string, opts NormalizeOptions) ([]string, int) {
	found := make([]string, 0, len(needles))
	counted := 0
	for _, needle := range needles {
		normalized := Normalize(needle, opts)
		if normalized == "" {
			continue
		}
		counted++
		if strings.Contains(text, normalized) {
			found = append(found, needle)
		}
	}
	return found, counted
}

// MatchEssay applies the keyword, phrase and length rubric to an essay. Each
// configured check is worth one point.
func MatchEssay(student interface{}, rubric EssayRubric, opts AutoGradeOptions) MatchResult {
	normOpts := opts.textNormalization()
	text := Normalize(student, normOpts)
	wordCount := len(strings.Fields(text))

	result := MatchResult{Details: map[string]interface{}{"wordCount": wordCount}}
	var score, maxScore float64
	notes := make([]string, 0, 3)

	if rubric.MinLength != nil && rubric.MaxLength != nil {
		maxScore++
		withinLength := wordCount >= *rubric.MinLength && wordCount <= *rubric.MaxLength
		result.Details["lengthOk"] = withinLength
		if withinLength {
			score++
		} else {
			notes = append(notes, fmt.Sprintf("length %d words, expected %d-%d", wordCount, *rubric.MinLength, *rubric.MaxLength))
		}
	}

	foundKeywords, keywordCount := matchNeedles(text, rubric.Keywords, normOpts)
	score += float64(len(foundKeywords))
	maxScore += float64(keywordCount)
	if keywordCount > 0 {
		result.Details["keywordsFound"] = foundKeywords
		notes = append(notes, fmt.Sprintf("keywords %d/%d", len(foundKeywords), keywordCount))
	}

	foundPhrases, phraseCount := matchNeedles(text, rubric.RequiredPhrases, normOpts)
	score += float64(len(foundPhrases))
	maxScore += float64(phraseCount)
	if phraseCount > 0 {
		result.Details["phrasesFound"] = foundPhrases
		notes = append(notes, fmt.Sprintf("required phrases %d/%d", len(foundPhrases), phraseCount))
	}

	if maxScore < 1 {
		maxScore = 1
		notes = append(notes, "no essay criteria configured")
	}

	result.Score = score
	result.MaxScore = maxScore
	result.Correct = maxScore > 0 && score == maxScore
	if result.Correct {
		result.Feedback = "All essay criteria met"
	} else {
		result.Feedback = strings.Join(notes, "; ")
	}
	return result
}

func normalizeSet(values []string, opts NormalizeOptions) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		normalized := Normalize(value, opts)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
