package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionScore is one immutable version of an answer's score. Exactly one
// version per answer carries IsCurrent=true once the answer has been graded.
type QuestionScore struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AnswerID       uint           `gorm:"not null;uniqueIndex:idx_question_scores_answer_version,priority:1;index" json:"answer_id"`
	QuestionID     uint           `gorm:"not null;index" json:"question_id"`
	SubmissionID   uint           `gorm:"not null;index" json:"submission_id"`
	Score          float64        `gorm:"not null" json:"score"`
	MaxScore       float64        `gorm:"not null" json:"max_score"`
	RubricID       *string        `gorm:"size:128" json:"rubric_id"`
	CriteriaScores datatypes.JSON `json:"criteria_scores"`
	Feedback       string         `gorm:"type:text" json:"feedback"`
	GradedBy       string         `gorm:"size:64;not null" json:"graded_by"`
	GradedAt       time.Time      `gorm:"not null" json:"graded_at"`
	Version        int            `gorm:"not null;uniqueIndex:idx_question_scores_answer_version,priority:2" json:"version"`
	IsCurrent      bool           `gorm:"not null;default:false;index" json:"is_current"`
	CreatedAt      time.Time      `json:"created_at"`
}
