package controllers

import (
	"project/backend/config"
	"project/backend/services"
	"project/backend/utils"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type GradingController struct {
	DB      *gorm.DB
	Cfg     *config.Config
	Grading *services.GradingService
}

func NewGradingController(db *gorm.DB, cfg *config.Config) *GradingController {
	return &GradingController{DB: db, Cfg: cfg, Grading: services.NewGradingService(db)}
}

// GetPendingAnswers lists ungraded written answers across submitted
// attempts, oldest first. ?test_id narrows the queue to one test.
func (gc *GradingController) GetPendingAnswers(c *fiber.Ctx) error {
	var testID int
	if raw := c.Query("test_id"); raw != "" {
		var err error
		testID, err = strconv.Atoi(raw)
		if err != nil {
			return utils.BadRequest(c, "Invalid test ID")
		}
	}

	answers, err := gc.Grading.PendingWritten(uint(testID))
	if err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	var result []fiber.Map
	for i := range answers {
		ans := &answers[i]
		result = append(result, fiber.Map{
			"id":          ans.ID,
			"attempt_id":  ans.AttemptID,
			"question_id": ans.QuestionID,
			"question":    ans.Question.Text,
			"max_points":  ans.Question.Points,
			"answer_text": ans.AnswerText,
		})
	}

	return utils.Success(c, fiber.StatusOK, result)
}

type manualGradeInput struct {
	Points   *float64 `json:"points" validate:"required,min=0"`
	Feedback string   `json:"feedback"`
}

// GradeAnswer records a manual grade for one written answer. Points above
// the question's value are clamped down to it.
func (gc *GradingController) GradeAnswer(c *fiber.Ctx) error {
	graderID, err := utils.ExtractUserIDFromToken(c, gc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	answerID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid answer ID")
	}

	var input manualGradeInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if fields := utils.ValidateStruct(input); fields != nil {
		return utils.ValidationError(c, fields)
	}

	answer, err := gc.Grading.ManualGrade(graderID, uint(answerID), *input.Points, input.Feedback)
	if err != nil {
		return respondServiceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Answer graded",
		"answer": fiber.Map{
			"id":            answer.ID,
			"points_earned": answer.PointsEarned,
			"is_correct":    answer.IsCorrect,
			"feedback":      answer.Feedback,
			"graded_at":     answer.GradedAt,
		},
	})
}

// CompleteGrading finalizes a submitted attempt once every answer, written
// ones included, carries a grade.
func (gc *GradingController) CompleteGrading(c *fiber.Ctx) error {
	if _, err := utils.ExtractUserIDFromToken(c, gc.Cfg); err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	attemptID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid attempt ID")
	}

	attempt, err := gc.Grading.CompleteManualGrading(uint(attemptID))
	if err != nil {
		return respondServiceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Grading completed",
		"attempt": attemptSummaryView(attempt),
	})
}
