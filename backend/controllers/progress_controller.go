package controllers

import (
	"project/backend/config"
	"project/backend/models"
	"project/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ProgressController struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func NewProgressController(db *gorm.DB, cfg *config.Config) *ProgressController {
	return &ProgressController{DB: db, Cfg: cfg}
}

// GetProgress godoc
// @Summary Get learner progress
// @Description Returns the learner's attempt totals and recent results
// @Tags progress
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /progress [get]
func (pc *ProgressController) GetProgress(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, pc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var totalAttempts, gradedAttempts, passedAttempts int64
	if err := pc.DB.Model(&models.TestAttempt{}).
		Where("user_id = ?", userID).
		Count(&totalAttempts).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	if err := pc.DB.Model(&models.TestAttempt{}).
		Where("user_id = ? AND status = ?", userID, models.AttemptGraded).
		Count(&gradedAttempts).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	if err := pc.DB.Model(&models.TestAttempt{}).
		Where("user_id = ? AND status = ? AND passed = ?", userID, models.AttemptGraded, true).
		Count(&passedAttempts).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	var avgPercentage *float64
	if err := pc.DB.Model(&models.TestAttempt{}).
		Where("user_id = ? AND status = ?", userID, models.AttemptGraded).
		Select("AVG(percentage)").
		Scan(&avgPercentage).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	var recent []models.TestAttempt
	if err := pc.DB.Preload("Test", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("user_id = ? AND status = ?", userID, models.AttemptGraded).
		Order("graded_at DESC").
		Limit(5).
		Find(&recent).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	var recentViews []fiber.Map
	for i := range recent {
		view := attemptSummaryView(&recent[i])
		view["test_title"] = recent[i].Test.Title
		recentViews = append(recentViews, view)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"total_attempts":  totalAttempts,
		"graded_attempts": gradedAttempts,
		"passed_attempts": passedAttempts,
		"avg_percentage":  avgPercentage,
		"recent":          recentViews,
	})
}
