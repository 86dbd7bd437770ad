package services

import (
	"errors"
	"project/backend/models"
	"time"

	"gorm.io/gorm"
)

// AutoGradeAnswer grades an objective answer in place. It returns true when a
// grade was recorded. A question without a marked correct option has no
// answer key; the answer is left untouched so the authoring gap is visible to
// the caller without failing the submission.
func AutoGradeAnswer(q *models.Question, ans *models.TestAnswer, now time.Time) bool {
	if !q.Type.AutoGradable() {
		return false
	}

	correct := q.CorrectOption()
	if correct == nil {
		return false
	}

	isCorrect := ans.SelectedOptionID != nil && *ans.SelectedOptionID == correct.ID
	earned := 0.0
	if isCorrect {
		earned = q.Points
	}

	ans.IsCorrect = &isCorrect
	ans.PointsEarned = &earned
	ans.GradedAt = &now
	return true
}

// ScoreSummary is the attempt-level aggregation result.
type ScoreSummary struct {
	Score       float64
	TotalPoints float64
	Percentage  float64
	Passed      bool
}

// Aggregate sums earned points over the attempt's answers against the total
// points of every question on the test. Unanswered and ungraded answers
// contribute zero. Passing is >= the threshold, so a threshold of 0 passes
// everything.
func Aggregate(questions []models.Question, answers []models.TestAnswer, passingScore float64) ScoreSummary {
	var total, score float64
	for i := range questions {
		total += questions[i].Points
	}
	for i := range answers {
		if answers[i].PointsEarned != nil {
			score += *answers[i].PointsEarned
		}
	}

	percentage := 0.0
	if total > 0 {
		percentage = score / total * 100
	}

	return ScoreSummary{
		Score:       score,
		TotalPoints: total,
		Percentage:  percentage,
		Passed:      percentage >= passingScore,
	}
}

type GradingService struct {
	DB *gorm.DB
}

func NewGradingService(db *gorm.DB) *GradingService {
	return &GradingService{DB: db}
}

// ManualGrade records an instructor's grade for a written answer. Points are
// clamped to [0, question.points]; is_correct means full marks.
func (gs *GradingService) ManualGrade(graderID, answerID uint, points float64, feedback string) (*models.TestAnswer, error) {
	var answer models.TestAnswer
	if err := gs.DB.Preload("Question").First(&answer, answerID).Error; err != nil {
		return nil, err
	}

	if answer.Question.Type.AutoGradable() {
		return nil, ErrNotGradable
	}

	// Grading an in-progress attempt would let the learner rewrite the text
	// under an already-recorded grade.
	var attempt models.TestAttempt
	if err := gs.DB.First(&attempt, answer.AttemptID).Error; err != nil {
		return nil, err
	}
	if attempt.Status != models.AttemptSubmitted {
		return nil, ErrNotSubmitted
	}

	if points < 0 {
		points = 0
	}
	if points > answer.Question.Points {
		points = answer.Question.Points
	}

	now := time.Now()
	isCorrect := points == answer.Question.Points
	answer.PointsEarned = &points
	answer.IsCorrect = &isCorrect
	answer.GradedAt = &now
	answer.GradedBy = &graderID
	if feedback != "" {
		answer.Feedback = &feedback
	}

	if err := gs.DB.Save(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

// CompleteManualGrading finalizes a submitted attempt once every question,
// written ones included, carries a grade. It aggregates the score and
// advances the attempt to graded inside one transaction.
func (gs *GradingService) CompleteManualGrading(attemptID uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	err := gs.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&attempt, attemptID).Error; err != nil {
			return err
		}
		if attempt.Status != models.AttemptSubmitted {
			if attempt.Status == models.AttemptGraded {
				return nil
			}
			return ErrNotSubmitted
		}

		var questions []models.Question
		if err := tx.Where("test_id = ?", attempt.TestID).Find(&questions).Error; err != nil {
			return err
		}
		var answers []models.TestAnswer
		if err := tx.Where("attempt_id = ?", attempt.ID).Find(&answers).Error; err != nil {
			return err
		}

		graded := make(map[uint]bool, len(answers))
		for i := range answers {
			if answers[i].Graded() {
				graded[answers[i].QuestionID] = true
			}
		}
		for i := range questions {
			if !graded[questions[i].ID] {
				return ErrNotAllGraded
			}
		}

		// Unscoped: the test may have been soft-deleted after submission.
		var test models.Test
		if err := tx.Unscoped().First(&test, attempt.TestID).Error; err != nil {
			return err
		}

		return finalizeScore(tx, &attempt, questions, answers, test.PassingScore)
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// PendingWritten lists ungraded written answers on submitted attempts,
// oldest submission first. A non-zero testID narrows the queue to one test.
func (gs *GradingService) PendingWritten(testID uint) ([]models.TestAnswer, error) {
	query := gs.DB.Preload("Question").
		Joins("JOIN test_attempts ON test_attempts.id = test_answers.attempt_id").
		Joins("JOIN questions ON questions.id = test_answers.question_id").
		Where("test_attempts.status = ?", models.AttemptSubmitted).
		Where("questions.type = ? AND test_answers.points_earned IS NULL", models.QuestionWritten).
		Order("test_attempts.submitted_at ASC")
	if testID != 0 {
		query = query.Where("test_attempts.test_id = ?", testID)
	}

	var answers []models.TestAnswer
	if err := query.Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

// finalizeScore writes the aggregated result and moves the attempt to graded.
func finalizeScore(tx *gorm.DB, attempt *models.TestAttempt, questions []models.Question, answers []models.TestAnswer, passingScore float64) error {
	summary := Aggregate(questions, answers, passingScore)

	if err := attempt.Transition(models.AttemptGraded); err != nil {
		return err
	}

	now := time.Now()
	attempt.Score = &summary.Score
	attempt.TotalPoints = &summary.TotalPoints
	attempt.Percentage = &summary.Percentage
	attempt.Passed = &summary.Passed
	attempt.GradedAt = &now

	return tx.Save(attempt).Error
}

// IsNotFound reports whether err is the record-not-found class.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
