package controllers

import (
	"errors"
	"project/backend/config"
	"project/backend/models"
	"project/backend/utils"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TestsController struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func NewTestsController(db *gorm.DB, cfg *config.Config) *TestsController {
	return &TestsController{DB: db, Cfg: cfg}
}

// GetAvailableTests lists tests currently open to the learner: active,
// inside their window, under a published parent.
func (tc *TestsController) GetAvailableTests(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, tc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var tests []models.Test
	if err := tc.DB.Where("is_active = ?", true).Find(&tests).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	// One query per parent kind and one grouped count instead of per-test
	// round trips.
	idsByKind := map[models.ParentKind][]uint{}
	for i := range tests {
		idsByKind[tests[i].ParentKind] = append(idsByKind[tests[i].ParentKind], tests[i].ParentID)
	}
	parents := map[models.ParentKind]map[uint]models.Learnable{}
	for kind, ids := range idsByKind {
		loaded, err := models.LoadParents(tc.DB, kind, ids)
		if err != nil {
			return utils.InternalServerError(c, "Could not query database")
		}
		parents[kind] = loaded
	}

	var counts []struct {
		TestID uint
		Total  int64
	}
	if err := tc.DB.Model(&models.TestAttempt{}).
		Select("test_id, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("test_id").
		Scan(&counts).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}
	used := make(map[uint]int64, len(counts))
	for _, row := range counts {
		used[row.TestID] = row.Total
	}

	now := time.Now()
	var result []fiber.Map
	for i := range tests {
		test := &tests[i]
		if !test.AvailableAt(now) {
			continue
		}

		parent, ok := parents[test.ParentKind][test.ParentID]
		if !ok || !parent.IsPublished() {
			continue
		}

		result = append(result, fiber.Map{
			"id":               test.ID,
			"title":            test.Title,
			"description":      test.Description,
			"parent_kind":      test.ParentKind,
			"parent_title":     parent.LearnableTitle(),
			"duration_minutes": test.DurationMinutes,
			"passing_score":    test.PassingScore,
			"max_attempts":     test.MaxAttempts,
			"attempts_used":    used[test.ID],
			"available_until":  test.AvailableUntil,
		})
	}

	return utils.Success(c, fiber.StatusOK, result)
}

// GetTestDetails returns the public description of a test. Answer keys are
// never part of this payload.
func (tc *TestsController) GetTestDetails(c *fiber.Ctx) error {
	if _, err := utils.ExtractUserIDFromToken(c, tc.Cfg); err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	testID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid test ID")
	}

	var test models.Test
	if err := tc.DB.Preload("Questions.Options").First(&test, testID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(c, "Test not found")
		}
		return utils.InternalServerError(c, "Could not query database")
	}

	view := testPublicView(&test)
	view["shuffle_questions"] = test.ShuffleQuestions
	view["question_count"] = len(test.Questions)

	return utils.Success(c, fiber.StatusOK, view)
}

type createTestInput struct {
	Title                  string     `json:"title" validate:"required"`
	Description            string     `json:"description"`
	ParentKind             string     `json:"parent_kind" validate:"required,oneof=course bootcamp program workshop"`
	ParentID               uint       `json:"parent_id" validate:"required"`
	DurationMinutes        *int       `json:"duration_minutes" validate:"omitempty,min=1"`
	PassingScore           float64    `json:"passing_score" validate:"min=0,max=100"`
	MaxAttempts            int        `json:"max_attempts" validate:"omitempty,min=1"`
	ShuffleQuestions       bool       `json:"shuffle_questions"`
	ShowCorrectAnswers     bool       `json:"show_correct_answers"`
	ShowResultsImmediately *bool      `json:"show_results_immediately"`
	AvailableFrom          *time.Time `json:"available_from"`
	AvailableUntil         *time.Time `json:"available_until"`
}

// CreateTest godoc
// @Summary Create a test
// @Description Creates a test attached to a course, bootcamp, program or workshop
// @Tags admin-tests
// @Accept json
// @Produce json
// @Param input body createTestInput true "Test definition"
// @Success 200 {object} map[string]interface{}
// @Failure 422 {object} utils.ErrorResponse
// @Security ApiKeyAuth
// @Router /admin/tests [post]
func (tc *TestsController) CreateTest(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, tc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	var input createTestInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if fields := utils.ValidateStruct(input); fields != nil {
		return utils.ValidationError(c, fields)
	}

	kind := models.ParentKind(input.ParentKind)
	if _, err := models.ResolveParent(tc.DB, kind, input.ParentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(c, "Parent entity not found")
		}
		return utils.InternalServerError(c, "Could not query database")
	}

	maxAttempts := input.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	showResults := true
	if input.ShowResultsImmediately != nil {
		showResults = *input.ShowResultsImmediately
	}

	test := models.Test{
		Title:                  input.Title,
		Description:            input.Description,
		ParentKind:             kind,
		ParentID:               input.ParentID,
		DurationMinutes:        input.DurationMinutes,
		PassingScore:           input.PassingScore,
		MaxAttempts:            maxAttempts,
		ShuffleQuestions:       input.ShuffleQuestions,
		ShowCorrectAnswers:     input.ShowCorrectAnswers,
		ShowResultsImmediately: showResults,
		AvailableFrom:          input.AvailableFrom,
		AvailableUntil:         input.AvailableUntil,
		IsActive:               true,
		AuthorID:               userID,
	}

	if err := tc.DB.Create(&test).Error; err != nil {
		return utils.InternalServerError(c, "Could not create test")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Test created",
		"test":    test,
	})
}

type updateTestInput struct {
	Title                  *string    `json:"title"`
	Description            *string    `json:"description"`
	DurationMinutes        *int       `json:"duration_minutes" validate:"omitempty,min=1"`
	PassingScore           *float64   `json:"passing_score" validate:"omitempty,min=0,max=100"`
	MaxAttempts            *int       `json:"max_attempts" validate:"omitempty,min=1"`
	ShuffleQuestions       *bool      `json:"shuffle_questions"`
	ShowCorrectAnswers     *bool      `json:"show_correct_answers"`
	ShowResultsImmediately *bool      `json:"show_results_immediately"`
	AvailableFrom          *time.Time `json:"available_from"`
	AvailableUntil         *time.Time `json:"available_until"`
	IsActive               *bool      `json:"is_active"`
}

func (tc *TestsController) UpdateTest(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, tc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	test, errResp := tc.loadOwnedTest(c, userID)
	if test == nil {
		return errResp
	}

	var input updateTestInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if fields := utils.ValidateStruct(input); fields != nil {
		return utils.ValidationError(c, fields)
	}

	if input.Title != nil {
		test.Title = *input.Title
	}
	if input.Description != nil {
		test.Description = *input.Description
	}
	if input.DurationMinutes != nil {
		test.DurationMinutes = input.DurationMinutes
	}
	if input.PassingScore != nil {
		test.PassingScore = *input.PassingScore
	}
	if input.MaxAttempts != nil {
		test.MaxAttempts = *input.MaxAttempts
	}
	if input.ShuffleQuestions != nil {
		test.ShuffleQuestions = *input.ShuffleQuestions
	}
	if input.ShowCorrectAnswers != nil {
		test.ShowCorrectAnswers = *input.ShowCorrectAnswers
	}
	if input.ShowResultsImmediately != nil {
		test.ShowResultsImmediately = *input.ShowResultsImmediately
	}
	if input.AvailableFrom != nil {
		test.AvailableFrom = input.AvailableFrom
	}
	if input.AvailableUntil != nil {
		test.AvailableUntil = input.AvailableUntil
	}
	if input.IsActive != nil {
		test.IsActive = *input.IsActive
	}

	if err := tc.DB.Save(test).Error; err != nil {
		return utils.InternalServerError(c, "Could not update test")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Test updated",
		"test":    test,
	})
}

// DeleteTest soft-deletes the test; attempts keep referencing it for audit.
func (tc *TestsController) DeleteTest(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, tc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	test, errResp := tc.loadOwnedTest(c, userID)
	if test == nil {
		return errResp
	}

	if err := tc.DB.Delete(test).Error; err != nil {
		return utils.InternalServerError(c, "Could not delete test")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "Test deleted",
	})
}

type optionInput struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
	Position  int    `json:"position"`
}

type questionInput struct {
	Type        string        `json:"type" validate:"required,oneof=multiple_choice true_false written"`
	Text        string        `json:"text" validate:"required"`
	Explanation string        `json:"explanation"`
	Points      float64       `json:"points" validate:"required,gt=0"`
	Position    int           `json:"position"`
	Required    *bool         `json:"required"`
	Options     []optionInput `json:"options" validate:"dive"`
}

func (tc *TestsController) AddQuestion(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, tc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	test, errResp := tc.loadOwnedTest(c, userID)
	if test == nil {
		return errResp
	}

	var input questionInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if fields := utils.ValidateStruct(input); fields != nil {
		return utils.ValidationError(c, fields)
	}

	position := input.Position
	if position == 0 {
		var count int64
		if err := tc.DB.Model(&models.Question{}).Where("test_id = ?", test.ID).Count(&count).Error; err != nil {
			return utils.InternalServerError(c, "Could not query database")
		}
		position = int(count) + 1
	}
	required := true
	if input.Required != nil {
		required = *input.Required
	}

	question := models.Question{
		TestID:      test.ID,
		Type:        models.QuestionType(input.Type),
		Text:        input.Text,
		Explanation: input.Explanation,
		Points:      input.Points,
		Position:    position,
		Required:    required,
	}
	for i, opt := range input.Options {
		pos := opt.Position
		if pos == 0 {
			pos = i + 1
		}
		question.Options = append(question.Options, models.QuestionOption{
			Text:      opt.Text,
			IsCorrect: opt.IsCorrect,
			Position:  pos,
		})
	}

	if err := tc.DB.Create(&question).Error; err != nil {
		return utils.InternalServerError(c, "Could not create question")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":  "Question added",
		"question": question,
	})
}

func (tc *TestsController) UpdateQuestion(c *fiber.Ctx) error {
	userID, err := utils.ExtractUserIDFromToken(c, tc.Cfg)
	if err != nil {
		return utils.Unauthorized(c, "Unauthorized")
	}

	test, errResp := tc.loadOwnedTest(c, userID)
	if test == nil {
		return errResp
	}

	questionID, err := strconv.Atoi(c.Params("questionId"))
	if err != nil {
		return utils.BadRequest(c, "Invalid question ID")
	}

	var question models.Question
	if err := tc.DB.Where("id = ? AND test_id = ?", questionID, test.ID).First(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(c, "Question not found")
		}
		return utils.InternalServerError(c, "Could not query database")
	}

	var input struct {
		Text        *string       `json:"text"`
		Explanation *string       `json:"explanation"`
		Points      *float64      `json:"points" validate:"omitempty,gt=0"`
		Position    *int          `json:"position"`
		Required    *bool         `json:"required"`
		Options     []optionInput `json:"options" validate:"dive"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if fields := utils.ValidateStruct(input); fields != nil {
		return utils.ValidationError(c, fields)
	}

	if input.Text != nil {
		question.Text = *input.Text
	}
	if input.Explanation != nil {
		question.Explanation = *input.Explanation
	}
	if input.Points != nil {
		question.Points = *input.Points
	}
	if input.Position != nil {
		question.Position = *input.Position
	}
	if input.Required != nil {
		question.Required = *input.Required
	}

	err = tc.DB.Transaction(func(tx *gorm.DB) error {
		if input.Options != nil {
			if err := tx.Where("question_id = ?", question.ID).Delete(&models.QuestionOption{}).Error; err != nil {
				return err
			}
			for i, opt := range input.Options {
				pos := opt.Position
				if pos == 0 {
					pos = i + 1
				}
				option := models.QuestionOption{
					QuestionID: question.ID,
					Text:       opt.Text,
					IsCorrect:  opt.IsCorrect,
					Position:   pos,
				}
				if err := tx.Create(&option).Error; err != nil {
					return err
				}
			}
		}
		return tx.Save(&question).Error
	})
	if err != nil {
		return utils.InternalServerError(c, "Could not update question")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":  "Question updated",
		"question": question,
	})
}

// GetTestAnalytics summarizes attempts per learner for instructors.
func (tc *TestsController) GetTestAnalytics(c *fiber.Ctx) error {
	testID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid test ID")
	}

	var attempts []models.TestAttempt
	if err := tc.DB.Where("test_id = ?", testID).Order("user_id, attempt_number").Find(&attempts).Error; err != nil {
		return utils.InternalServerError(c, "Could not query database")
	}

	var rows []fiber.Map
	var gradedCount, passedCount int
	var percentageSum float64
	for i := range attempts {
		attempt := &attempts[i]

		var user models.User
		if err := tc.DB.First(&user, attempt.UserID).Error; err != nil {
			continue
		}

		rows = append(rows, fiber.Map{
			"user_id":        user.ID,
			"username":       user.Username,
			"attempt_number": attempt.AttemptNumber,
			"status":         attempt.Status,
			"score":          attempt.Score,
			"percentage":     attempt.Percentage,
			"passed":         attempt.Passed,
			"submitted_at":   attempt.SubmittedAt,
		})

		if attempt.Status == models.AttemptGraded && attempt.Percentage != nil {
			gradedCount++
			percentageSum += *attempt.Percentage
			if attempt.Passed != nil && *attempt.Passed {
				passedCount++
			}
		}
	}

	summary := fiber.Map{
		"attempts": len(attempts),
		"graded":   gradedCount,
	}
	if gradedCount > 0 {
		summary["avg_percentage"] = percentageSum / float64(gradedCount)
		summary["pass_rate"] = float64(passedCount) / float64(gradedCount) * 100
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"analytics": rows,
		"summary":   summary,
	})
}

// loadOwnedTest fetches the test in :id and checks edit rights (author or
// admin). On failure the first return value is nil and the second carries
// the response already written.
func (tc *TestsController) loadOwnedTest(c *fiber.Ctx, userID uint) (*models.Test, error) {
	testID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return nil, utils.BadRequest(c, "Invalid test ID")
	}

	var test models.Test
	if err := tc.DB.First(&test, testID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound(c, "Test not found")
		}
		return nil, utils.InternalServerError(c, "Could not query database")
	}

	if test.AuthorID != userID {
		var user models.User
		if err := tc.DB.First(&user, userID).Error; err != nil || user.Role != models.RoleAdmin {
			return nil, utils.Forbidden(c, "You don't have permission to edit this test")
		}
	}

	return &test, nil
}
