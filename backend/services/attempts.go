package services

import (
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"project/backend/models"
	"time"

	"gorm.io/gorm"
)

// AttemptService owns the attempt lifecycle: start, answer capture,
// submission with auto-grading, and lazy expiry.
type AttemptService struct {
	DB *gorm.DB
}

func NewAttemptService(db *gorm.DB) *AttemptService {
	return &AttemptService{DB: db}
}

// withDeleted includes soft-deleted rows. Attempts keep referencing their
// test after it is deleted; loading a zero-value Test instead would grade
// against a passing score of 0 and drop the time limit.
func withDeleted(db *gorm.DB) *gorm.DB {
	return db.Unscoped()
}

// StartAttempt creates a new in-progress attempt after re-checking the
// eligibility gate. The attempt number is 1 + the learner's prior max for
// this test; a concurrent start losing the unique-index race is retried once
// with a fresh max.
func (s *AttemptService) StartAttempt(userID, testID uint) (*models.TestAttempt, error) {
	var test models.Test
	if err := s.DB.First(&test, testID).Error; err != nil {
		return nil, err
	}

	if err := CanStart(s.DB, &test, userID); err != nil {
		return nil, err
	}

	order, err := s.questionOrder(&test)
	if err != nil {
		return nil, err
	}

	attempt, err := s.createNumbered(userID, &test, order)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a concurrent start; re-read the max and try once more.
		attempt, err = s.createNumbered(userID, &test, order)
	}
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *AttemptService) createNumbered(userID uint, test *models.Test, order []byte) (*models.TestAttempt, error) {
	var maxNumber int
	if err := s.DB.Model(&models.TestAttempt{}).
		Where("test_id = ? AND user_id = ?", test.ID, userID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&maxNumber).Error; err != nil {
		return nil, err
	}

	attempt := models.TestAttempt{
		TestID:        test.ID,
		UserID:        userID,
		AttemptNumber: maxNumber + 1,
		Status:        models.AttemptInProgress,
		StartedAt:     time.Now(),
		QuestionOrder: order,
	}
	if err := s.DB.Create(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// questionOrder fixes the question sequence for the whole attempt. Shuffling
// happens here, once; every later read replays the stored order.
func (s *AttemptService) questionOrder(test *models.Test) ([]byte, error) {
	var ids []uint
	if err := s.DB.Model(&models.Question{}).
		Where("test_id = ?", test.ID).
		Order("position ASC, id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	if test.ShuffleQuestions {
		rand.Shuffle(len(ids), func(i, j int) {
			ids[i], ids[j] = ids[j], ids[i]
		})
	}

	return json.Marshal(ids)
}

// GetAttempt loads the learner's own attempt. A foreign attempt id reports
// not-found rather than forbidden so other users' attempts stay invisible.
// An expired in-progress attempt is auto-submitted before it is returned;
// the second return value reports whether this read did the auto-submit.
func (s *AttemptService) GetAttempt(userID, attemptID uint) (*models.TestAttempt, bool, error) {
	var attempt models.TestAttempt
	if err := s.DB.Preload("Test", withDeleted).First(&attempt, attemptID).Error; err != nil {
		return nil, false, err
	}
	if attempt.UserID != userID {
		return nil, false, ErrNotOwner
	}

	autoSubmitted := false
	if attempt.Status == models.AttemptInProgress && attempt.Expired(&attempt.Test, time.Now()) {
		if err := s.submit(&attempt); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			return nil, false, err
		}
		autoSubmitted = true
		if err := s.DB.Preload("Test", withDeleted).First(&attempt, attemptID).Error; err != nil {
			return nil, false, err
		}
	}

	return &attempt, autoSubmitted, nil
}

// QuestionsInOrder returns the attempt's questions with options, in the
// sequence frozen at start time.
func (s *AttemptService) QuestionsInOrder(attempt *models.TestAttempt) ([]models.Question, error) {
	var questions []models.Question
	if err := s.DB.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC, id ASC")
	}).Where("test_id = ?", attempt.TestID).Find(&questions).Error; err != nil {
		return nil, err
	}

	var order []uint
	if len(attempt.QuestionOrder) > 0 {
		if err := json.Unmarshal(attempt.QuestionOrder, &order); err != nil {
			return nil, err
		}
	}
	if len(order) == 0 {
		return questions, nil
	}

	byID := make(map[uint]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]models.Question, 0, len(order))
	for _, id := range order {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

// SaveAnswer upserts the learner's answer for one question. The payload kind
// must match the question type; calling again for the same question replaces
// the previous answer.
func (s *AttemptService) SaveAnswer(userID, attemptID, questionID uint, selectedOptionID *uint, answerText *string) (*models.TestAnswer, error) {
	attempt, autoSubmitted, err := s.GetAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}
	if autoSubmitted {
		return nil, ErrAttemptExpired
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, ErrNotInProgress
	}

	var question models.Question
	if err := s.DB.Preload("Options").
		Where("id = ? AND test_id = ?", questionID, attempt.TestID).
		First(&question).Error; err != nil {
		return nil, err
	}

	if question.Type.AutoGradable() {
		if selectedOptionID == nil || answerText != nil {
			return nil, ErrPayloadMismatch
		}
		valid := false
		for _, opt := range question.Options {
			if opt.ID == *selectedOptionID {
				valid = true
				break
			}
		}
		if !valid {
			return nil, ErrPayloadMismatch
		}
	} else {
		if answerText == nil || selectedOptionID != nil {
			return nil, ErrPayloadMismatch
		}
	}

	var answer models.TestAnswer
	err = s.DB.Where("attempt_id = ? AND question_id = ?", attempt.ID, question.ID).
		First(&answer).Error
	switch {
	case err == nil:
		answer.SelectedOptionID = selectedOptionID
		answer.AnswerText = answerText
		err = s.DB.Save(&answer).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		answer = models.TestAnswer{
			AttemptID:        attempt.ID,
			QuestionID:       question.ID,
			SelectedOptionID: selectedOptionID,
			AnswerText:       answerText,
		}
		err = s.DB.Create(&answer).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent save for the same question; last write wins.
			err = s.DB.Model(&models.TestAnswer{}).
				Where("attempt_id = ? AND question_id = ?", attempt.ID, question.ID).
				Updates(map[string]interface{}{
					"selected_option_id": selectedOptionID,
					"answer_text":        answerText,
				}).Error
		}
	}
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

// SubmitAttempt finalizes the learner's attempt: grades every objective
// answer and, when nothing is left for manual grading, aggregates the score.
func (s *AttemptService) SubmitAttempt(userID, attemptID uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := s.DB.Preload("Test", withDeleted).First(&attempt, attemptID).Error; err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrNotOwner
	}

	if err := s.submit(&attempt); err != nil {
		return nil, err
	}

	if err := s.DB.Preload("Test", withDeleted).First(&attempt, attemptID).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// submit runs the whole submission as one transaction. The status flip is a
// conditional update guarded on in_progress, so the loser of a double-submit
// race observes zero affected rows and fails without touching grades.
func (s *AttemptService) submit(attempt *models.TestAttempt) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		res := tx.Model(&models.TestAttempt{}).
			Where("id = ? AND status = ?", attempt.ID, models.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":       models.AttemptSubmitted,
				"submitted_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySubmitted
		}
		attempt.Status = models.AttemptSubmitted
		attempt.SubmittedAt = &now

		var questions []models.Question
		if err := tx.Preload("Options").
			Where("test_id = ?", attempt.TestID).
			Find(&questions).Error; err != nil {
			return err
		}

		var answers []models.TestAnswer
		if err := tx.Where("attempt_id = ?", attempt.ID).Find(&answers).Error; err != nil {
			return err
		}

		// Materialize a row per question so unanswered ones carry a zero
		// grade instead of blocking finalization.
		have := make(map[uint]bool, len(answers))
		for i := range answers {
			have[answers[i].QuestionID] = true
		}
		for i := range questions {
			if have[questions[i].ID] {
				continue
			}
			blank := models.TestAnswer{AttemptID: attempt.ID, QuestionID: questions[i].ID}
			if err := tx.Create(&blank).Error; err != nil {
				return err
			}
			answers = append(answers, blank)
		}

		questionByID := make(map[uint]*models.Question, len(questions))
		for i := range questions {
			questionByID[questions[i].ID] = &questions[i]
		}

		missingKey := 0
		allObjectiveGraded := true
		for i := range answers {
			ans := &answers[i]
			q := questionByID[ans.QuestionID]
			if q == nil || !q.Type.AutoGradable() {
				continue // written answers wait for manual grading
			}

			if AutoGradeAnswer(q, ans, now) {
				if err := tx.Save(ans).Error; err != nil {
					return err
				}
			} else {
				// Authoring gap: question has no marked correct option.
				missingKey++
				allObjectiveGraded = false
			}
		}

		if missingKey > 0 {
			log.Printf("attempt %d: %d objective question(s) without an answer key left ungraded", attempt.ID, missingKey)
		}

		writtenPending := false
		for i := range questions {
			if !questions[i].Type.AutoGradable() {
				writtenPending = true
				break
			}
		}

		if allObjectiveGraded && !writtenPending {
			return finalizeScore(tx, attempt, questions, answers, attempt.Test.PassingScore)
		}
		return nil
	})
}

// ListAttempts returns the learner's attempts for all tests, newest first.
func (s *AttemptService) ListAttempts(userID uint) ([]models.TestAttempt, error) {
	var attempts []models.TestAttempt
	err := s.DB.Preload("Test", withDeleted).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}
