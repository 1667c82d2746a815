package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is one student's attempt at an activity. The score fields are
// derived from the current question scores and are rewritten on every recalculation.
type Submission struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	ActivityID       uint       `gorm:"not null;index" json:"activity_id"`
	StudentID        uint       `gorm:"not null;index" json:"student_id"`
	Status           string     `gorm:"size:32;not null" json:"status"`
	TotalScore       float64    `gorm:"not null;default:0" json:"total_score"`
	MaxPossibleScore float64    `gorm:"not null;default:0" json:"max_possible_score"`
	Percentage       float64    `gorm:"not null;default:0" json:"percentage"`
	SubmittedAt      *time.Time `json:"submitted_at"`
	GradedAt         *time.Time `json:"graded_at"`
	GradedBy         *string    `gorm:"size:64" json:"graded_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Activity         Activity   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"activity"`
}

const (
	// SubmissionStatusInProgress indicates the student is still answering.
	SubmissionStatusInProgress = "in_progress"
	// SubmissionStatusSubmitted indicates the submission has been handed in but not fully graded.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates every answer carries a current score.
	SubmissionStatusGraded = "graded"
)

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// SubmittedAnswer stores a student's raw value for one question of a submission.
type SubmittedAnswer struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SubmissionID uint           `gorm:"not null;index" json:"submission_id"`
	QuestionID   uint           `gorm:"not null;index" json:"question_id"`
	ElementID    string         `gorm:"size:128" json:"element_id"`
	AnswerData   datatypes.JSON `json:"answer_data"`
	ArchivedAt   *time.Time     `gorm:"index" json:"archived_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsArchived reports whether the answer was soft deleted.
func (a SubmittedAnswer) IsArchived() bool {
	return a.ArchivedAt != nil
}
