package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
	"github.com/noah-isme/gema-grading-api/internal/repository"
)

const scoringConfigSchemaURL = "scoring_configuration.schema.json"

const scoringConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["scoring_type"],
  "properties": {
    "scoring_type": {"enum": ["auto", "manual", "hybrid"]},
    "weight": {"type": ["number", "null"], "minimum": 0},
    "rubric_reference": {"type": ["string", "null"]},
    "expected_answers": {
      "type": ["object", "null"],
      "additionalProperties": {
        "anyOf": [
          {"type": "boolean"},
          {"type": "number"},
          {"type": "string"},
          {"type": "array", "items": {"type": ["string", "number", "boolean"]}},
          {
            "type": "object",
            "properties": {
              "value": {"type": "number"},
              "tolerance": {"type": "number", "minimum": 0},
              "keywords": {"type": "array", "items": {"type": "string", "minLength": 1}},
              "requiredPhrases": {"type": "array", "items": {"type": "string", "minLength": 1}},
              "minLength": {"type": "integer", "minimum": 0},
              "maxLength": {"type": "integer", "minimum": 0}
            }
          }
        ]
      }
    },
    "expected_kinds": {"type": ["object", "null"], "additionalProperties": {"type": "string"}},
    "auto_grade_options": {
      "type": ["object", "null"],
      "properties": {
        "matchingStrategy": {"enum": ["exact", "fuzzy", "contains"]},
        "caseSensitive": {"type": "boolean"},
        "ignorePunctuation": {"type": "boolean"},
        "tolerance": {"type": "number", "minimum": 0},
        "partialCredit": {"type": "boolean"},
        "pointsPerCorrect": {"type": "number", "minimum": 0}
      }
    },
    "field_scores": {
      "type": ["object", "null"],
      "additionalProperties": {
        "type": "object",
        "required": ["points"],
        "properties": {
          "points": {"type": "number", "minimum": 0},
          "wrongPenalty": {"type": "number", "maximum": 0},
          "blankPenalty": {"type": "number", "maximum": 0}
        }
      }
    }
  }
}`

var (
	scoringSchemaOnce sync.Once
	scoringSchema     *jsonschema.Schema
	scoringSchemaErr  error
)

func compiledScoringSchema() (*jsonschema.Schema, error) {
	scoringSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(scoringConfigSchemaURL, strings.NewReader(scoringConfigSchema)); err != nil {
			scoringSchemaErr = err
			return
		}
		scoringSchema, scoringSchemaErr = compiler.Compile(scoringConfigSchemaURL)
	})
	return scoringSchema, scoringSchemaErr
}

// ScoringConfigService stores and reads per question scoring configuration.
type ScoringConfigService interface {
	Save(ctx context.Context, questionID uint, payload dto.ScoringConfigRequest, actor ActivityActor) (dto.ScoringConfigResponse, error)
	Get(ctx context.Context, questionID uint) (dto.ScoringConfigResponse, error)
}

type scoringConfigService struct {
	questions repository.QuestionRepository
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
}

// NewScoringConfigService constructs the scoring configuration service.
func NewScoringConfigService(questions repository.QuestionRepository, validate *validator.Validate, activity ActivityRecorder, logger zerolog.Logger) ScoringConfigService {
	return &scoringConfigService{
		questions: questions,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "scoring_config_service").Logger(),
	}
}

func (s *scoringConfigService) Save(ctx context.Context, questionID uint, payload dto.ScoringConfigRequest, actor ActivityActor) (dto.ScoringConfigResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ScoringConfigResponse{}, err
	}
	if err := validateScoringDocument(payload); err != nil {
		return dto.ScoringConfigResponse{}, err
	}

	if _, err := s.questions.GetByID(ctx, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ScoringConfigResponse{}, ErrQuestionNotFound
		}
		return dto.ScoringConfigResponse{}, err
	}

	model, err := buildScoringConfiguration(questionID, payload)
	if err != nil {
		return dto.ScoringConfigResponse{}, err
	}
	model.UpdatedBy = actor.ID

	if err := s.questions.UpsertScoringConfig(ctx, &model); err != nil {
		s.logger.Error().Err(err).Uint("question_id", questionID).Msg("failed to store scoring configuration")
		return dto.ScoringConfigResponse{}, err
	}

	stored, err := s.questions.GetScoringConfig(ctx, questionID)
	if err != nil {
		return dto.ScoringConfigResponse{}, err
	}

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "scoring_config.updated",
			EntityType: "question",
			EntityID:   &questionID,
			Metadata: map[string]interface{}{
				"scoring_type": stored.ScoringType,
				"fields":       len(payload.ExpectedAnswers),
			},
		})
	}

	return dto.NewScoringConfigResponse(stored), nil
}

func (s *scoringConfigService) Get(ctx context.Context, questionID uint) (dto.ScoringConfigResponse, error) {
	cfg, err := s.questions.GetScoringConfig(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ScoringConfigResponse{}, ErrQuestionNotFound
		}
		return dto.ScoringConfigResponse{}, err
	}

	return dto.NewScoringConfigResponse(cfg), nil
}

func validateScoringDocument(payload dto.ScoringConfigRequest) error {
	schema, err := compiledScoringSchema()
	if err != nil {
		return fmt.Errorf("compile scoring schema: %w", err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScoringConfig, err)
	}
	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScoringConfig, err)
	}
	if err := schema.Validate(document); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScoringConfig, err)
	}
	return nil
}

// buildScoringConfiguration tags every expected answer with its kind so that
// grading never has to guess from the stored shape.
func buildScoringConfiguration(questionID uint, payload dto.ScoringConfigRequest) (models.ScoringConfiguration, error) {
	kinds := make(map[string]grading.AnswerKind, len(payload.ExpectedAnswers))
	for fieldID, expected := range payload.ExpectedAnswers {
		kind := grading.AnswerKind(payload.ExpectedKinds[fieldID])
		if !kind.Valid() {
			kind = grading.InferKind(expected)
		}
		kinds[fieldID] = kind
	}
	for fieldID := range payload.ExpectedKinds {
		if _, ok := payload.ExpectedAnswers[fieldID]; !ok {
			return models.ScoringConfiguration{}, fmt.Errorf("%w: kind given for unknown field %q", ErrInvalidScoringConfig, fieldID)
		}
	}
	for fieldID := range payload.FieldScores {
		if _, ok := payload.ExpectedAnswers[fieldID]; !ok {
			return models.ScoringConfiguration{}, fmt.Errorf("%w: points given for unknown field %q", ErrInvalidScoringConfig, fieldID)
		}
	}

	weight := 1.0
	if payload.Weight != nil {
		weight = *payload.Weight
	}

	options := grading.AutoGradeOptions{}
	if payload.AutoGradeOptions != nil {
		options = *payload.AutoGradeOptions
	}

	model := models.ScoringConfiguration{
		QuestionID:      questionID,
		ScoringType:     payload.ScoringType,
		Weight:          weight,
		RubricReference: payload.RubricReference,
	}

	var err error
	if model.ExpectedAnswers, err = marshalColumn(payload.ExpectedAnswers); err != nil {
		return models.ScoringConfiguration{}, err
	}
	if model.ExpectedKinds, err = marshalColumn(kinds); err != nil {
		return models.ScoringConfiguration{}, err
	}
	if model.AutoGradeOptions, err = marshalColumn(options); err != nil {
		return models.ScoringConfiguration{}, err
	}
	if model.FieldScores, err = marshalColumn(payload.FieldScores); err != nil {
		return models.ScoringConfiguration{}, err
	}

	return model, nil
}

func marshalColumn(value interface{}) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScoringConfig, err)
	}
	return payload, nil
}

// decodeScoringConfig turns the stored JSON columns into the engine config.
// Rows without stored kinds fall back to shape inference inside the engine.
func decodeScoringConfig(model models.ScoringConfiguration) (grading.Config, error) {
	cfg := grading.Config{ScoringType: grading.ScoringType(model.ScoringType)}
	if cfg.ScoringType == "" {
		cfg.ScoringType = grading.ScoringAuto
	}

	columns := []struct {
		name   string
		data   []byte
		target interface{}
	}{
		{name: "expected_answers", data: model.ExpectedAnswers, target: &cfg.ExpectedAnswers},
		{name: "expected_kinds", data: model.ExpectedKinds, target: &cfg.ExpectedKinds},
		{name: "auto_grade_options", data: model.AutoGradeOptions, target: &cfg.Options},
		{name: "field_scores", data: model.FieldScores, target: &cfg.FieldScores},
	}
	for _, column := range columns {
		if len(column.data) == 0 {
			continue
		}
		if err := json.Unmarshal(column.data, column.target); err != nil {
			return grading.Config{}, fmt.Errorf("%w: decode %s: %v", ErrInvalidScoringConfig, column.name, err)
		}
	}

	return cfg, nil
}
