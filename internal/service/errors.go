package service

import (
	"errors"
	"fmt"
)

// ErrValidation marks caller supplied input that failed validation.
var ErrValidation = errors.New("validation failed")

// ErrInvalidScore indicates a score outside [0, max score].
var ErrInvalidScore = fmt.Errorf("%w: score must be between 0 and max score", ErrValidation)

// ErrInvalidScoringConfig indicates a scoring configuration that cannot be stored or decoded.
var ErrInvalidScoringConfig = fmt.Errorf("%w: invalid scoring configuration", ErrValidation)

// ErrAnswerNotFound indicates the submitted answer does not exist or was archived.
var ErrAnswerNotFound = errors.New("answer not found")

// ErrSubmissionNotFound indicates the submission was not located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrQuestionNotFound indicates the question was not located.
var ErrQuestionNotFound = errors.New("question not found")
