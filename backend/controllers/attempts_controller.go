package controllers

import (
	"project/backend/config"
	"project/backend/models"
	"project/backend/services"
	"project/backend/utils"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AttemptsController struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Attempts *services.AttemptService
}

func NewAttemptsController(db *gorm.DB, cfg *config.Config) *AttemptsController {
	return &AttemptsController{DB: db, Cfg: cfg, Attempts: services.NewAttemptService(db)}
}

// StartAttempt godoc
// @Summary Start a test attempt
// @Description Starts a new attempt if the test is open and attempts remain
// @Tags attempts
// @Produce json
// @Param id path int true "Test ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} utils.ErrorResponse
// @Failure 404 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /tests/{id}/start [post]
func (ac *AttemptsController) StartAttempt(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, ac.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	testID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid test ID")
	}

	attempt, err := ac.Attempts.StartAttempt(userID, uint(testID))
	if err != nil {
		return respondServiceError(c, err)
	}

	questions, err := ac.Attempts.QuestionsInOrder(attempt)
	if err != nil {
		return utils.InternalServerError(c, "Could not load questions")
	}

	var test models.Test
	if err := ac.DB.First(&test, attempt.TestID).Error; err != nil {
		return utils.InternalServerError(c, "Could not load test")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"attempt": fiber.Map{
			"id":             attempt.ID,
			"attempt_number": attempt.AttemptNumber,
			"status":         attempt.Status,
			"started_at":     attempt.StartedAt,
			"expires_at":     attempt.ExpiresAt(&test),
		},
		"test":      testPublicView(&test),
		"questions": questionViews(questions, nil),
	})
}

// GetAttempt returns the in-progress state of the learner's attempt. An
// expired attempt is auto-submitted by this read and the finalized summary is
// returned instead; an attempt finalized before the call is a 400.
func (ac *AttemptsController) GetAttempt(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, ac.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	attemptID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid attempt ID")
	}

	attempt, autoSubmitted, err := ac.Attempts.GetAttempt(userID, uint(attemptID))
	if err != nil {
		return respondServiceError(c, err)
	}

	if attempt.Status != models.AttemptInProgress && !autoSubmitted {
		return utils.BadRequest(c, "Attempt already finalized")
	}

	if autoSubmitted {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"attempt":   attemptSummaryView(attempt),
			"finalized": true,
			"message":   "Attempt expired and was submitted automatically",
		})
	}

	questions, err := ac.Attempts.QuestionsInOrder(attempt)
	if err != nil {
		return utils.InternalServerError(c, "Could not load questions")
	}

	var answers []models.TestAnswer
	ac.DB.Where("attempt_id = ?", attempt.ID).Find(&answers)
	saved := make(map[uint]*models.TestAnswer, len(answers))
	for i := range answers {
		saved[answers[i].QuestionID] = &answers[i]
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"attempt": fiber.Map{
			"id":             attempt.ID,
			"attempt_number": attempt.AttemptNumber,
			"status":         attempt.Status,
			"started_at":     attempt.StartedAt,
			"expires_at":     attempt.ExpiresAt(&attempt.Test),
		},
		"test":      testPublicView(&attempt.Test),
		"questions": questionViews(questions, saved),
	})
}

type saveAnswerInput struct {
	QuestionID       uint    `json:"question_id" validate:"required"`
	SelectedOptionID *uint   `json:"selected_option_id"`
	AnswerText       *string `json:"answer_text"`
}

// SaveAnswer upserts one answer; saving the same question twice keeps the
// last payload.
func (ac *AttemptsController) SaveAnswer(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, ac.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	attemptID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid attempt ID")
	}

	var input saveAnswerInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if fields := utils.ValidateStruct(input); fields != nil {
		return utils.ValidationError(c, fields)
	}

	answer, err := ac.Attempts.SaveAnswer(userID, uint(attemptID), input.QuestionID, input.SelectedOptionID, input.AnswerText)
	if err != nil {
		return respondServiceError(c, err)
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Answer saved",
		"answer": fiber.Map{
			"question_id":        answer.QuestionID,
			"selected_option_id": answer.SelectedOptionID,
			"answer_text":        answer.AnswerText,
		},
	})
}

// SubmitAttempt finalizes the attempt. The score block is included only when
// grading completed immediately and the test shows results right away.
func (ac *AttemptsController) SubmitAttempt(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, ac.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	attemptID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid attempt ID")
	}

	attempt, err := ac.Attempts.SubmitAttempt(userID, uint(attemptID))
	if err != nil {
		return respondServiceError(c, err)
	}

	result := fiber.Map{
		"message": "Attempt submitted",
		"attempt": fiber.Map{
			"id":           attempt.ID,
			"status":       attempt.Status,
			"submitted_at": attempt.SubmittedAt,
		},
	}

	if attempt.Status == models.AttemptGraded && attempt.Test.ShowResultsImmediately {
		result["score"] = fiber.Map{
			"score":         attempt.Score,
			"total_points":  attempt.TotalPoints,
			"percentage":    attempt.Percentage,
			"passed":        attempt.Passed,
			"passing_score": attempt.Test.PassingScore,
		}
	} else if attempt.Status == models.AttemptSubmitted {
		result["message"] = "Attempt submitted, manual grading pending"
	}

	return utils.Success(c, fiber.StatusOK, result)
}

// GetResult returns the graded result, or a pending notice for attempts
// awaiting manual grading.
func (ac *AttemptsController) GetResult(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, ac.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	attemptID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid attempt ID")
	}

	attempt, _, err := ac.Attempts.GetAttempt(userID, uint(attemptID))
	if err != nil {
		return respondServiceError(c, err)
	}

	switch attempt.Status {
	case models.AttemptInProgress:
		return utils.BadRequest(c, "Attempt not yet submitted")
	case models.AttemptSubmitted:
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"status":  attempt.Status,
			"message": "Manual grading pending",
		})
	}

	result := fiber.Map{
		"status":        attempt.Status,
		"score":         attempt.Score,
		"total_points":  attempt.TotalPoints,
		"percentage":    attempt.Percentage,
		"passed":        attempt.Passed,
		"passing_score": attempt.Test.PassingScore,
		"graded_at":     attempt.GradedAt,
	}

	if attempt.Test.ShowCorrectAnswers {
		breakdown, err := ac.resultBreakdown(attempt)
		if err != nil {
			return utils.InternalServerError(c, "Could not load result details")
		}
		result["questions"] = breakdown
	}

	return utils.Success(c, fiber.StatusOK, result)
}

// resultBreakdown pairs each question with the learner's answer, the correct
// option for objective types, the explanation and any grader feedback.
func (ac *AttemptsController) resultBreakdown(attempt *models.TestAttempt) ([]fiber.Map, error) {
	questions, err := ac.Attempts.QuestionsInOrder(attempt)
	if err != nil {
		return nil, err
	}

	var answers []models.TestAnswer
	if err := ac.DB.Where("attempt_id = ?", attempt.ID).Find(&answers).Error; err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]*models.TestAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	breakdown := make([]fiber.Map, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		entry := fiber.Map{
			"id":          q.ID,
			"type":        q.Type,
			"text":        q.Text,
			"points":      q.Points,
			"explanation": q.Explanation,
		}

		if correct := q.CorrectOption(); correct != nil {
			entry["correct_option"] = fiber.Map{"id": correct.ID, "text": correct.Text}
		}

		if ans := byQuestion[q.ID]; ans != nil {
			entry["answer"] = fiber.Map{
				"selected_option_id": ans.SelectedOptionID,
				"answer_text":        ans.AnswerText,
				"is_correct":         ans.IsCorrect,
				"points_earned":      ans.PointsEarned,
				"feedback":           ans.Feedback,
			}
		}

		breakdown = append(breakdown, entry)
	}
	return breakdown, nil
}

func attemptSummaryView(attempt *models.TestAttempt) fiber.Map {
	return fiber.Map{
		"id":             attempt.ID,
		"test_id":        attempt.TestID,
		"attempt_number": attempt.AttemptNumber,
		"status":         attempt.Status,
		"started_at":     attempt.StartedAt,
		"submitted_at":   attempt.SubmittedAt,
		"graded_at":      attempt.GradedAt,
		"score":          attempt.Score,
		"total_points":   attempt.TotalPoints,
		"percentage":     attempt.Percentage,
		"passed":         attempt.Passed,
	}
}

func testPublicView(test *models.Test) fiber.Map {
	return fiber.Map{
		"id":                       test.ID,
		"title":                    test.Title,
		"description":              test.Description,
		"duration_minutes":         test.DurationMinutes,
		"passing_score":            test.PassingScore,
		"max_attempts":             test.MaxAttempts,
		"show_results_immediately": test.ShowResultsImmediately,
		"available_from":           test.AvailableFrom,
		"available_until":          test.AvailableUntil,
	}
}

// questionViews renders questions for the learner: option correctness flags
// are never included. When saved answers are given they ride along so a page
// reload restores the learner's selections.
func questionViews(questions []models.Question, saved map[uint]*models.TestAnswer) []fiber.Map {
	views := make([]fiber.Map, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		options := make([]fiber.Map, 0, len(q.Options))
		for _, opt := range q.Options {
			options = append(options, fiber.Map{
				"id":       opt.ID,
				"text":     opt.Text,
				"position": opt.Position,
			})
		}

		view := fiber.Map{
			"id":       q.ID,
			"type":     q.Type,
			"text":     q.Text,
			"points":   q.Points,
			"position": q.Position,
			"required": q.Required,
			"options":  options,
		}

		if ans := saved[q.ID]; ans != nil {
			view["saved_answer"] = fiber.Map{
				"selected_option_id": ans.SelectedOptionID,
				"answer_text":        ans.AnswerText,
			}
		}

		views = append(views, view)
	}
	return views
}
