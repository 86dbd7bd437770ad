package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
)

// CanTransitionTo allows only the forward path
// in_progress -> submitted -> graded.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	switch s {
	case AttemptInProgress:
		return next == AttemptSubmitted
	case AttemptSubmitted:
		return next == AttemptGraded
	}
	return false
}

type TestAttempt struct {
	gorm.Model
	TestID        uint          `gorm:"not null;uniqueIndex:idx_test_user_attempt"`
	UserID        uint          `gorm:"not null;uniqueIndex:idx_test_user_attempt"`
	AttemptNumber int           `gorm:"not null;uniqueIndex:idx_test_user_attempt"`
	Status        AttemptStatus `gorm:"size:20;default:in_progress;index"`
	StartedAt     time.Time
	SubmittedAt   *time.Time
	GradedAt      *time.Time
	Score         *float64
	TotalPoints   *float64
	Percentage    *float64
	Passed        *bool
	// QuestionOrder freezes the per-attempt question sequence when the test
	// shuffles. Stored so every read of the attempt sees the same order.
	QuestionOrder datatypes.JSON
	Answers       []TestAnswer `gorm:"constraint:OnDelete:CASCADE"`
	Test          Test         `gorm:"foreignKey:TestID"`
}

// Transition advances the status or fails; reverse transitions are caller
// bugs, not user errors.
func (a *TestAttempt) Transition(next AttemptStatus) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid attempt transition %s -> %s", a.Status, next)
	}
	a.Status = next
	return nil
}

// ExpiresAt returns the deadline for a timed test, or nil for untimed ones.
func (a *TestAttempt) ExpiresAt(test *Test) *time.Time {
	if test.DurationMinutes == nil {
		return nil
	}
	deadline := a.StartedAt.Add(time.Duration(*test.DurationMinutes) * time.Minute)
	return &deadline
}

// Expired reports whether the attempt ran out of time at the given instant.
func (a *TestAttempt) Expired(test *Test, now time.Time) bool {
	deadline := a.ExpiresAt(test)
	return deadline != nil && now.After(*deadline)
}

type TestAnswer struct {
	gorm.Model
	AttemptID        uint `gorm:"not null;uniqueIndex:idx_attempt_question"`
	QuestionID       uint `gorm:"not null;uniqueIndex:idx_attempt_question"`
	SelectedOptionID *uint
	AnswerText       *string `gorm:"type:text"`
	IsCorrect        *bool
	PointsEarned     *float64
	Feedback         *string `gorm:"type:text"`
	GradedBy         *uint
	GradedAt         *time.Time
	Question         Question `gorm:"foreignKey:QuestionID"`
}

// Graded reports whether a grade has been recorded for this answer.
func (ans *TestAnswer) Graded() bool {
	return ans.PointsEarned != nil
}
