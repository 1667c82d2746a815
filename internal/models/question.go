package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity groups questions that a student answers in one submission.
type Activity struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Title     string     `gorm:"size:255;not null" json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Questions []Question `json:"questions,omitempty"`
}

// Question is a single gradable item inside an activity.
type Question struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActivityID uint      `gorm:"not null;index" json:"activity_id"`
	Section    string    `gorm:"size:128" json:"section"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Scoring types accepted by ScoringConfiguration.ScoringType.
const (
	ScoringTypeAuto   = "auto"
	ScoringTypeManual = "manual"
	ScoringTypeHybrid = "hybrid"
)

// ScoringConfiguration holds the expected answers and point model for a question.
// ExpectedKinds is written on save; rows created before kinds were stored leave it empty.
type ScoringConfiguration struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	QuestionID       uint           `gorm:"not null;uniqueIndex" json:"question_id"`
	ScoringType      string         `gorm:"size:16;not null;default:auto" json:"scoring_type"`
	// Weight is reported with the configuration; submission totals do not apply it.
	Weight           float64        `gorm:"not null;default:1" json:"weight"`
	RubricReference  *string        `gorm:"size:128" json:"rubric_reference"`
	ExpectedAnswers  datatypes.JSON `json:"expected_answers"`
	ExpectedKinds    datatypes.JSON `json:"expected_kinds"`
	AutoGradeOptions datatypes.JSON `json:"auto_grade_options"`
	FieldScores      datatypes.JSON `json:"field_scores"`
	UpdatedBy        string         `gorm:"size:64" json:"updated_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Question         Question       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
