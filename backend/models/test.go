package models

import (
	"time"

	"gorm.io/gorm"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionWritten        QuestionType = "written"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionWritten:
		return true
	}
	return false
}

// AutoGradable reports whether correctness can be decided by option match.
func (t QuestionType) AutoGradable() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

type Test struct {
	gorm.Model
	Title                  string `gorm:"not null"`
	Description            string
	ParentKind             ParentKind `gorm:"size:16;not null;index:idx_test_parent"`
	ParentID               uint       `gorm:"not null;index:idx_test_parent"`
	DurationMinutes        *int
	PassingScore           float64 `gorm:"default:0"` // percentage, 0-100
	MaxAttempts            int     `gorm:"default:1"`
	ShuffleQuestions       bool    `gorm:"default:false"`
	ShowCorrectAnswers     bool    `gorm:"default:false"`
	ShowResultsImmediately bool    `gorm:"default:true"`
	AvailableFrom          *time.Time
	AvailableUntil         *time.Time
	IsActive               bool `gorm:"default:true"`
	AuthorID               uint
	Questions              []Question `gorm:"constraint:OnDelete:CASCADE"`
}

// AvailableAt reports whether the test is open at the given instant.
func (t *Test) AvailableAt(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.AvailableFrom != nil && now.Before(*t.AvailableFrom) {
		return false
	}
	if t.AvailableUntil != nil && now.After(*t.AvailableUntil) {
		return false
	}
	return true
}

type Question struct {
	gorm.Model
	TestID      uint         `gorm:"not null;index"`
	Type        QuestionType `gorm:"size:20;not null"`
	Text        string       `gorm:"not null"`
	Explanation string
	Points      float64 `gorm:"not null"`
	Position    int
	Required    bool             `gorm:"default:true"`
	Options     []QuestionOption `gorm:"constraint:OnDelete:CASCADE"`
}

// CorrectOption returns the first option marked correct, or nil when the
// question has no answer key. Options must be preloaded.
func (q *Question) CorrectOption() *QuestionOption {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return &q.Options[i]
		}
	}
	return nil
}

type QuestionOption struct {
	gorm.Model
	QuestionID uint   `gorm:"not null;index"`
	Text       string `gorm:"not null"`
	IsCorrect  bool   `gorm:"default:false"`
	Position   int
}
