package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
)

const scoreSummarySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["success", "message", "data"],
  "properties": {
    "success": {"const": true},
    "message": {"type": "string"},
    "data": {
      "type": "object",
      "required": ["submission_id", "status", "total_score", "max_possible_score", "percentage",
                   "total_answers", "graded_count", "pending_count", "scores", "pending", "cache_hit"],
      "properties": {
        "status": {"enum": ["in_progress", "submitted", "graded"]},
        "total_score": {"type": "number", "minimum": 0},
        "max_possible_score": {"type": "number", "minimum": 0},
        "percentage": {"type": "number", "minimum": 0, "maximum": 100},
        "pending_count": {"type": "integer", "minimum": 0},
        "scores": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["answer_id", "question_id", "score", "max_score", "graded_by", "version", "is_current"],
            "properties": {
              "version": {"type": "integer", "minimum": 1},
              "is_current": {"const": true}
            }
          }
        },
        "pending": {
          "type": "array",
          "items": {"type": "object", "required": ["answer_id", "question_id"]}
        }
      }
    }
  }
}`

func compileContract(t *testing.T, name, schema string) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource(name, strings.NewReader(schema)))
	compiled, err := compiler.Compile(name)
	require.NoError(t, err)
	return compiled
}

func TestScoreSummaryContract(t *testing.T) {
	schema := compileContract(t, "score_summary.schema.json", scoreSummarySchema)

	g := setupGradingApp(t, "teacher")
	_, answer := g.seedAnswer(t, "free text")

	status, _ := g.do(t, http.MethodPost, fmt.Sprintf("/api/v2/grading/answers/%d/grade", answer.ID), map[string]interface{}{
		"score": 3.5, "max_score": 5,
	})
	require.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v2/grading/submissions/%d/summary", answer.SubmissionID), nil)
	resp, err := g.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
