package services

import (
	"project/backend/models"
	"time"

	"gorm.io/gorm"
)

// Eligible is the pure gate over a test and the learner's prior attempt
// count. It fails closed: inactive test, outside the availability window, or
// exhausted quota all deny. The returned error identifies the reason.
func Eligible(test *models.Test, attemptCount int64, now time.Time) error {
	if !test.AvailableAt(now) {
		return ErrTestUnavailable
	}
	if attemptCount >= int64(test.MaxAttempts) {
		return ErrNoAttemptsLeft
	}
	return nil
}

// CanStart checks whether the learner may start a new attempt on the test.
func CanStart(db *gorm.DB, test *models.Test, userID uint) error {
	var count int64
	if err := db.Model(&models.TestAttempt{}).
		Where("test_id = ? AND user_id = ?", test.ID, userID).
		Count(&count).Error; err != nil {
		return err
	}
	return Eligible(test, count, time.Now())
}
