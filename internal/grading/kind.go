package grading

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AnswerKind identifies which matcher an expected answer is graded with.
type AnswerKind string

const (
	KindBoolean     AnswerKind = "boolean"
	KindNumeric     AnswerKind = "numeric"
	KindText        AnswerKind = "text"
	KindMultiSelect AnswerKind = "multi_select"
	KindEssay       AnswerKind = "essay"
)

// Valid reports whether k is one of the known kinds.
func (k AnswerKind) Valid() bool {
	switch k {
	case KindBoolean, KindNumeric, KindText, KindMultiSelect, KindEssay:
		return true
	}
	return false
}

// EssayRubric is the keyword/length rubric attached to essay fields.
type EssayRubric struct {
	Keywords        []string `json:"keywords,omitempty"`
	MinLength       *int     `json:"minLength,omitempty"`
	MaxLength       *int     `json:"maxLength,omitempty"`
	RequiredPhrases []string `json:"requiredPhrases,omitempty"`
}

// ExpectedAnswer is the decoded, kind-tagged form of one expected answer field.
// Only the payload matching Kind is meaningful.
type ExpectedAnswer struct {
	Kind      AnswerKind
	Bool      bool
	Number    float64
	Tolerance *float64
	Text      string
	Options   []string
	Essay     EssayRubric
	// Raw keeps the original decoded JSON value.
	Raw interface{}
}

// InferKind picks an answer kind from the structural shape of a decoded
// expected value. It is used for configurations saved before kinds were
// stored and when tagging a configuration on save.
func InferKind(expected interface{}) AnswerKind {
	switch v := expected.(type) {
	case bool:
		return KindBoolean
	case map[string]interface{}:
		for _, key := range []string{"keywords", "minLength", "maxLength", "requiredPhrases"} {
			if _, ok := v[key]; ok {
				return KindEssay
			}
		}
		if _, ok := v["value"]; ok {
			return KindNumeric
		}
		return KindText
	case []interface{}, []string:
		return KindMultiSelect
	case float64, float32, int, int64, json.Number:
		return KindNumeric
	default:
		return KindText
	}
}

// ParseExpected decodes an expected value into an ExpectedAnswer of the given
// kind. An empty kind falls back to InferKind.
func ParseExpected(raw interface{}, kind AnswerKind) ExpectedAnswer {
	if !kind.Valid() {
		kind = InferKind(raw)
	}

	expected := ExpectedAnswer{Kind: kind, Raw: raw}
	switch kind {
	case KindBoolean:
		expected.Bool, _ = toBool(raw)
	case KindNumeric:
		if obj, ok := raw.(map[string]interface{}); ok {
			expected.Number, _ = toFloat(obj["value"])
			if tol, ok := toFloat(obj["tolerance"]); ok {
				expected.Tolerance = &tol
			}
		} else {
			expected.Number, _ = toFloat(raw)
		}
	case KindMultiSelect:
		expected.Options = toStringSlice(raw)
	case KindEssay:
		expected.Essay = parseEssayRubric(raw)
	default:
		if text, ok := raw.(string); ok {
			expected.Text = text
		}
	}

	return expected
}

func parseEssayRubric(raw interface{}) EssayRubric {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return EssayRubric{}
	}

	rubric := EssayRubric{
		Keywords:        toStringSlice(obj["keywords"]),
		RequiredPhrases: toStringSlice(obj["requiredPhrases"]),
	}
	if v, ok := toFloat(obj["minLength"]); ok {
		n := int(v)
		rubric.MinLength = &n
	}
	if v, ok := toFloat(obj["maxLength"]); ok {
		n := int(v)
		rubric.MaxLength = &n
	}

	return rubric
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "yes", "checked", "1":
			return true, true
		case "false", "off", "no", "0":
			return false, true
		}
	case float64:
		return v != 0, true
	}
	return false, false
}

// toStringSlice flattens a selection value into strings. A lone scalar becomes
// a one element slice.
func toStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, stringify(item))
		}
		return out
	default:
		return []string{stringify(v)}
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
