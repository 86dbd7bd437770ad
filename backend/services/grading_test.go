package services

import (
	"project/backend/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func optionPtr(id uint) *uint { return &id }

func mcQuestion(points float64, correctID uint, wrongID uint) models.Question {
	q := models.Question{
		Type:   models.QuestionMultipleChoice,
		Points: points,
	}
	q.Options = []models.QuestionOption{
		{Text: "right", IsCorrect: true},
		{Text: "wrong"},
	}
	q.Options[0].ID = correctID
	q.Options[1].ID = wrongID
	return q
}

func TestAutoGradeAnswer(t *testing.T) {
	now := time.Now()

	t.Run("correct selection earns full points", func(t *testing.T) {
		q := mcQuestion(5, 10, 11)
		ans := models.TestAnswer{SelectedOptionID: optionPtr(10)}

		graded := AutoGradeAnswer(&q, &ans, now)

		assert.True(t, graded)
		assert.NotNil(t, ans.IsCorrect)
		assert.True(t, *ans.IsCorrect)
		assert.Equal(t, 5.0, *ans.PointsEarned)
		assert.Equal(t, now, *ans.GradedAt)
	})

	t.Run("wrong selection earns zero", func(t *testing.T) {
		q := mcQuestion(5, 10, 11)
		ans := models.TestAnswer{SelectedOptionID: optionPtr(11)}

		graded := AutoGradeAnswer(&q, &ans, now)

		assert.True(t, graded)
		assert.False(t, *ans.IsCorrect)
		assert.Equal(t, 0.0, *ans.PointsEarned)
	})

	t.Run("no selection grades as incorrect", func(t *testing.T) {
		q := mcQuestion(5, 10, 11)
		ans := models.TestAnswer{}

		graded := AutoGradeAnswer(&q, &ans, now)

		assert.True(t, graded)
		assert.False(t, *ans.IsCorrect)
		assert.Equal(t, 0.0, *ans.PointsEarned)
	})

	t.Run("written question is not auto-graded", func(t *testing.T) {
		q := models.Question{Type: models.QuestionWritten, Points: 10}
		text := "an essay"
		ans := models.TestAnswer{AnswerText: &text}

		graded := AutoGradeAnswer(&q, &ans, now)

		assert.False(t, graded)
		assert.Nil(t, ans.IsCorrect)
		assert.Nil(t, ans.PointsEarned)
	})

	t.Run("question without answer key is left untouched", func(t *testing.T) {
		q := models.Question{
			Type:   models.QuestionMultipleChoice,
			Points: 5,
			Options: []models.QuestionOption{
				{Text: "a"}, {Text: "b"},
			},
		}
		ans := models.TestAnswer{SelectedOptionID: optionPtr(1)}

		graded := AutoGradeAnswer(&q, &ans, now)

		assert.False(t, graded)
		assert.Nil(t, ans.IsCorrect)
		assert.Nil(t, ans.PointsEarned)
	})
}

func earnedAnswer(points float64) models.TestAnswer {
	return models.TestAnswer{PointsEarned: &points}
}

func TestAggregate(t *testing.T) {
	questions := []models.Question{
		{Points: 5}, {Points: 5}, {Points: 10},
	}

	tests := []struct {
		name         string
		questions    []models.Question
		answers      []models.TestAnswer
		passingScore float64
		want         ScoreSummary
	}{
		{
			name:         "full marks",
			questions:    questions,
			answers:      []models.TestAnswer{earnedAnswer(5), earnedAnswer(5), earnedAnswer(10)},
			passingScore: 70,
			want:         ScoreSummary{Score: 20, TotalPoints: 20, Percentage: 100, Passed: true},
		},
		{
			name:         "percentage exactly at threshold passes",
			questions:    questions,
			answers:      []models.TestAnswer{earnedAnswer(5), earnedAnswer(5), earnedAnswer(4)},
			passingScore: 70,
			want:         ScoreSummary{Score: 14, TotalPoints: 20, Percentage: 70, Passed: true},
		},
		{
			name:         "just below threshold fails",
			questions:    questions,
			answers:      []models.TestAnswer{earnedAnswer(5), earnedAnswer(5), earnedAnswer(3)},
			passingScore: 70,
			want:         ScoreSummary{Score: 13, TotalPoints: 20, Percentage: 65, Passed: false},
		},
		{
			name:         "unanswered questions count against the total",
			questions:    questions,
			answers:      []models.TestAnswer{earnedAnswer(5)},
			passingScore: 50,
			want:         ScoreSummary{Score: 5, TotalPoints: 20, Percentage: 25, Passed: false},
		},
		{
			name:         "ungraded answers contribute zero",
			questions:    questions,
			answers:      []models.TestAnswer{earnedAnswer(5), {}, {}},
			passingScore: 20,
			want:         ScoreSummary{Score: 5, TotalPoints: 20, Percentage: 25, Passed: true},
		},
		{
			name:         "zero total points yields zero percentage without dividing",
			questions:    nil,
			answers:      nil,
			passingScore: 50,
			want:         ScoreSummary{Score: 0, TotalPoints: 0, Percentage: 0, Passed: false},
		},
		{
			name:         "passing score of zero passes everything",
			questions:    questions,
			answers:      nil,
			passingScore: 0,
			want:         ScoreSummary{Score: 0, TotalPoints: 20, Percentage: 0, Passed: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Aggregate(tc.questions, tc.answers, tc.passingScore)
			assert.Equal(t, tc.want, got)
		})
	}
}
