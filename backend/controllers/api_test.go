package controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"project/backend/config"
	"project/backend/models"
	"project/backend/routes"
	"project/backend/utils"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	app *fiber.App
	db  *gorm.DB
	cfg *config.Config
)

func TestMain(m *testing.M) {
	setup()
	code := m.Run()
	teardown()
	os.Exit(code)
}

func setup() {
	cfg = &config.Config{
		DBHost:        getenv("TEST_DB_HOST", "localhost"),
		DBPort:        getenv("TEST_DB_PORT", "5432"),
		DBUser:        getenv("TEST_DB_USER", "postgres"),
		DBPassword:    getenv("TEST_DB_PASSWORD", "postgres"),
		DBName:        getenv("TEST_DB_NAME", "assessment_platform_test"),
		DBSSLMode:     "disable",
		JWTSecret:     "testsecret",
		TokenTTLHours: 1,
		ServerPort:    "8080",
	}

	var err error
	db, err = utils.InitDB(cfg)
	if err != nil {
		// No database around; every API test skips.
		db = nil
		return
	}
	if err := utils.Migrate(db); err != nil {
		db = nil
		return
	}

	app = fiber.New()
	routes.SetupRoutes(app, db, cfg)
}

func teardown() {
	if db == nil {
		return
	}
	db.Migrator().DropTable(
		&models.TestAnswer{},
		&models.TestAttempt{},
		&models.QuestionOption{},
		&models.Question{},
		&models.Test{},
		&models.Course{},
		&models.Bootcamp{},
		&models.Program{},
		&models.Workshop{},
		&models.LoginHistory{},
		&models.User{},
	)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireDB(t *testing.T) {
	t.Helper()
	if db == nil {
		t.Skip("postgres not available")
	}
}

// request runs one API call and decodes the JSON body into a map.
func request(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(jsonData)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func createUser(t *testing.T, username, role string) (models.User, string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
	}
	require.NoError(t, db.Create(&user).Error)

	token, err := utils.GenerateJWTToken(user.ID, cfg)
	require.NoError(t, err)
	return user, token
}

func createCourse(t *testing.T, title string) models.Course {
	t.Helper()
	course := models.Course{Title: title, Published: true}
	require.NoError(t, db.Create(&course).Error)
	return course
}

// createMCTest builds a test with two multiple-choice questions worth 5
// points each, directly in the database.
func createMCTest(t *testing.T, authorID, parentID uint, mutate func(*models.Test)) models.Test {
	t.Helper()

	test := models.Test{
		Title:                  "Checkpoint",
		ParentKind:             models.ParentCourse,
		ParentID:               parentID,
		PassingScore:           60,
		MaxAttempts:            3,
		ShowResultsImmediately: true,
		IsActive:               true,
		AuthorID:               authorID,
	}
	if mutate != nil {
		mutate(&test)
	}
	require.NoError(t, db.Create(&test).Error)

	for i := 1; i <= 2; i++ {
		question := models.Question{
			TestID:   test.ID,
			Type:     models.QuestionMultipleChoice,
			Text:     fmt.Sprintf("Question %d", i),
			Points:   5,
			Position: i,
			Required: true,
			Options: []models.QuestionOption{
				{Text: "right", IsCorrect: true, Position: 1},
				{Text: "wrong", Position: 2},
			},
		}
		require.NoError(t, db.Create(&question).Error)
	}
	return test
}

func loadQuestions(t *testing.T, testID uint) []models.Question {
	t.Helper()
	var questions []models.Question
	require.NoError(t, db.Preload("Options", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	}).Where("test_id = ?", testID).Order("position ASC").Find(&questions).Error)
	return questions
}

func correctOptionID(q models.Question) uint {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt.ID
		}
	}
	return 0
}

func wrongOptionID(q models.Question) uint {
	for _, opt := range q.Options {
		if !opt.IsCorrect {
			return opt.ID
		}
	}
	return 0
}

func TestAttemptLifecycle(t *testing.T) {
	requireDB(t)

	instructor, _ := createUser(t, "lifecycle_instructor", models.RoleInstructor)
	_, learnerToken := createUser(t, "lifecycle_learner", models.RoleLearner)
	course := createCourse(t, "Go Basics")
	test := createMCTest(t, instructor.ID, course.ID, nil)
	questions := loadQuestions(t, test.ID)

	// Start
	status, body := request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]interface{})
	attempt := data["attempt"].(map[string]interface{})
	attemptID := uint(attempt["id"].(float64))
	assert.Equal(t, float64(1), attempt["attempt_number"])
	assert.Equal(t, "in_progress", attempt["status"])
	assert.Len(t, data["questions"].([]interface{}), 2)

	// Learner view never exposes correctness flags
	for _, q := range data["questions"].([]interface{}) {
		for _, opt := range q.(map[string]interface{})["options"].([]interface{}) {
			_, present := opt.(map[string]interface{})["is_correct"]
			assert.False(t, present)
		}
	}

	// Answer both, then change the first: last write wins
	answerPath := fmt.Sprintf("/api/attempts/%d/answers", attemptID)
	status, _ = request(t, "POST", answerPath, learnerToken, fiber.Map{
		"question_id":        questions[0].ID,
		"selected_option_id": wrongOptionID(questions[0]),
	})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = request(t, "POST", answerPath, learnerToken, fiber.Map{
		"question_id":        questions[0].ID,
		"selected_option_id": correctOptionID(questions[0]),
	})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = request(t, "POST", answerPath, learnerToken, fiber.Map{
		"question_id":        questions[1].ID,
		"selected_option_id": wrongOptionID(questions[1]),
	})
	require.Equal(t, fiber.StatusOK, status)

	// Payload kind must match the question type
	status, _ = request(t, "POST", answerPath, learnerToken, fiber.Map{
		"question_id": questions[0].ID,
		"answer_text": "free text on a multiple choice question",
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	// Submit: one right, one wrong -> 50%, below the 60% bar
	status, body = request(t, "POST", fmt.Sprintf("/api/attempts/%d/submit", attemptID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	score := body["data"].(map[string]interface{})["score"].(map[string]interface{})
	assert.Equal(t, float64(5), score["score"])
	assert.Equal(t, float64(10), score["total_points"])
	assert.Equal(t, float64(50), score["percentage"])
	assert.Equal(t, false, score["passed"])

	// Submitting again is rejected without touching the grade
	status, _ = request(t, "POST", fmt.Sprintf("/api/attempts/%d/submit", attemptID), learnerToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	// Reading a finalized attempt is rejected too
	status, _ = request(t, "GET", fmt.Sprintf("/api/attempts/%d", attemptID), learnerToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	// The result stays readable
	status, body = request(t, "GET", fmt.Sprintf("/api/attempts/%d/result", attemptID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	result := body["data"].(map[string]interface{})
	assert.Equal(t, "graded", result["status"])
	assert.Equal(t, float64(50), result["percentage"])

	// A fresh start picks the next contiguous attempt number
	status, body = request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	second := body["data"].(map[string]interface{})["attempt"].(map[string]interface{})
	assert.Equal(t, float64(2), second["attempt_number"])
}

func TestAttemptQuotaAndOwnership(t *testing.T) {
	requireDB(t)

	instructor, _ := createUser(t, "quota_instructor", models.RoleInstructor)
	_, learnerToken := createUser(t, "quota_learner", models.RoleLearner)
	_, strangerToken := createUser(t, "quota_stranger", models.RoleLearner)
	course := createCourse(t, "Quota Course")
	test := createMCTest(t, instructor.ID, course.ID, func(tst *models.Test) {
		tst.MaxAttempts = 1
	})

	status, body := request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	attemptID := uint(body["data"].(map[string]interface{})["attempt"].(map[string]interface{})["id"].(float64))

	// Quota of one is spent even though the attempt is still in progress
	status, _ = request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	// Another learner cannot see the attempt, and learns nothing about it
	status, _ = request(t, "GET", fmt.Sprintf("/api/attempts/%d", attemptID), strangerToken, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestInactiveTestDeniesStart(t *testing.T) {
	requireDB(t)

	instructor, _ := createUser(t, "inactive_instructor", models.RoleInstructor)
	_, learnerToken := createUser(t, "inactive_learner", models.RoleLearner)
	course := createCourse(t, "Inactive Course")
	test := createMCTest(t, instructor.ID, course.ID, func(tst *models.Test) {
		tst.IsActive = false
	})

	status, _ := request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestExpiredAttemptAutoSubmits(t *testing.T) {
	requireDB(t)

	instructor, _ := createUser(t, "expiry_instructor", models.RoleInstructor)
	_, learnerToken := createUser(t, "expiry_learner", models.RoleLearner)
	course := createCourse(t, "Timed Course")
	duration := 30
	test := createMCTest(t, instructor.ID, course.ID, func(tst *models.Test) {
		tst.DurationMinutes = &duration
	})
	questions := loadQuestions(t, test.ID)

	status, body := request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	attemptID := uint(body["data"].(map[string]interface{})["attempt"].(map[string]interface{})["id"].(float64))

	status, _ = request(t, "POST", fmt.Sprintf("/api/attempts/%d/answers", attemptID), learnerToken, fiber.Map{
		"question_id":        questions[0].ID,
		"selected_option_id": correctOptionID(questions[0]),
	})
	require.Equal(t, fiber.StatusOK, status)

	// Push the start time past the deadline; the next read must finalize it
	require.NoError(t, db.Model(&models.TestAttempt{}).
		Where("id = ?", attemptID).
		Update("started_at", time.Now().Add(-time.Hour)).Error)

	status, body = request(t, "GET", fmt.Sprintf("/api/attempts/%d", attemptID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["finalized"])
	attempt := data["attempt"].(map[string]interface{})
	assert.Equal(t, "graded", attempt["status"])
	// One correct answer saved before expiry still counts
	assert.Equal(t, float64(5), attempt["score"])

	// Writes after expiry are refused
	status, _ = request(t, "POST", fmt.Sprintf("/api/attempts/%d/answers", attemptID), learnerToken, fiber.Map{
		"question_id":        questions[1].ID,
		"selected_option_id": correctOptionID(questions[1]),
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestShuffledOrderIsStable(t *testing.T) {
	requireDB(t)

	instructor, _ := createUser(t, "shuffle_instructor", models.RoleInstructor)
	_, learnerToken := createUser(t, "shuffle_learner", models.RoleLearner)
	course := createCourse(t, "Shuffle Course")
	test := createMCTest(t, instructor.ID, course.ID, func(tst *models.Test) {
		tst.ShuffleQuestions = true
	})

	status, body := request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]interface{})
	attemptID := uint(data["attempt"].(map[string]interface{})["id"].(float64))
	first := questionIDs(data["questions"].([]interface{}))

	// Re-reading the attempt replays the order fixed at start
	for i := 0; i < 3; i++ {
		status, body = request(t, "GET", fmt.Sprintf("/api/attempts/%d", attemptID), learnerToken, nil)
		require.Equal(t, fiber.StatusOK, status)
		again := questionIDs(body["data"].(map[string]interface{})["questions"].([]interface{}))
		assert.Equal(t, first, again)
	}
}

func questionIDs(views []interface{}) []uint {
	ids := make([]uint, 0, len(views))
	for _, v := range views {
		ids = append(ids, uint(v.(map[string]interface{})["id"].(float64)))
	}
	return ids
}

func TestManualGradingFlow(t *testing.T) {
	requireDB(t)

	instructor, instructorToken := createUser(t, "grading_instructor", models.RoleInstructor)
	_, learnerToken := createUser(t, "grading_learner", models.RoleLearner)
	course := createCourse(t, "Essay Course")
	test := createMCTest(t, instructor.ID, course.ID, nil)

	essay := models.Question{
		TestID:   test.ID,
		Type:     models.QuestionWritten,
		Text:     "Explain interfaces",
		Points:   10,
		Position: 3,
		Required: true,
	}
	require.NoError(t, db.Create(&essay).Error)
	questions := loadQuestions(t, test.ID)

	status, body := request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	attemptID := uint(body["data"].(map[string]interface{})["attempt"].(map[string]interface{})["id"].(float64))

	answerPath := fmt.Sprintf("/api/attempts/%d/answers", attemptID)
	for _, q := range questions[:2] {
		status, _ = request(t, "POST", answerPath, learnerToken, fiber.Map{
			"question_id":        q.ID,
			"selected_option_id": correctOptionID(q),
		})
		require.Equal(t, fiber.StatusOK, status)
	}
	status, _ = request(t, "POST", answerPath, learnerToken, fiber.Map{
		"question_id": essay.ID,
		"answer_text": "Interfaces describe behavior, not data.",
	})
	require.Equal(t, fiber.StatusOK, status)

	// Grading is locked while the learner can still rewrite the answer
	var premature models.TestAnswer
	require.NoError(t, db.Where("attempt_id = ? AND question_id = ?", attemptID, essay.ID).First(&premature).Error)
	status, _ = request(t, "POST", fmt.Sprintf("/api/admin/grading/answers/%d", premature.ID), instructorToken, fiber.Map{
		"points": 5.0,
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	// Submission holds the attempt for manual grading
	status, body = request(t, "POST", fmt.Sprintf("/api/attempts/%d/submit", attemptID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "submitted", data["attempt"].(map[string]interface{})["status"])
	_, hasScore := data["score"]
	assert.False(t, hasScore)

	status, body = request(t, "GET", fmt.Sprintf("/api/attempts/%d/result", attemptID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "submitted", body["data"].(map[string]interface{})["status"])

	// Completing before every answer is graded must fail
	status, _ = request(t, "POST", fmt.Sprintf("/api/admin/grading/attempts/%d/complete", attemptID), instructorToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	// The essay shows up in the grading queue
	status, body = request(t, "GET", fmt.Sprintf("/api/admin/grading/pending?test_id=%d", test.ID), instructorToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	pending := body["data"].([]interface{})
	require.Len(t, pending, 1)
	answerID := uint(pending[0].(map[string]interface{})["id"].(float64))

	// Without the test_id filter the global queue still carries the answer
	status, body = request(t, "GET", "/api/admin/grading/pending", instructorToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	found := false
	for _, item := range body["data"].([]interface{}) {
		if uint(item.(map[string]interface{})["id"].(float64)) == answerID {
			found = true
		}
	}
	assert.True(t, found)

	// Points above the question's value are clamped to it
	status, body = request(t, "POST", fmt.Sprintf("/api/admin/grading/answers/%d", answerID), instructorToken, fiber.Map{
		"points":   50.0,
		"feedback": "Solid answer",
	})
	require.Equal(t, fiber.StatusOK, status)
	gradedAnswer := body["data"].(map[string]interface{})["answer"].(map[string]interface{})
	assert.Equal(t, float64(10), gradedAnswer["points_earned"])
	assert.Equal(t, true, gradedAnswer["is_correct"])

	// Now the attempt can be finalized
	status, body = request(t, "POST", fmt.Sprintf("/api/admin/grading/attempts/%d/complete", attemptID), instructorToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	finalized := body["data"].(map[string]interface{})["attempt"].(map[string]interface{})
	assert.Equal(t, "graded", finalized["status"])
	assert.Equal(t, float64(20), finalized["score"])
	assert.Equal(t, float64(20), finalized["total_points"])
	assert.Equal(t, float64(100), finalized["percentage"])
	assert.Equal(t, true, finalized["passed"])

	// Completing twice is an idempotent success
	status, _ = request(t, "POST", fmt.Sprintf("/api/admin/grading/attempts/%d/complete", attemptID), instructorToken, nil)
	assert.Equal(t, fiber.StatusOK, status)

	// Learners cannot reach the grading queue
	status, _ = request(t, "GET", fmt.Sprintf("/api/admin/grading/pending?test_id=%d", test.ID), learnerToken, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestDeletedTestStillGradesAgainstItsSettings(t *testing.T) {
	requireDB(t)

	instructor, _ := createUser(t, "deleted_instructor", models.RoleInstructor)
	_, learnerToken := createUser(t, "deleted_learner", models.RoleLearner)
	course := createCourse(t, "Retired Course")
	test := createMCTest(t, instructor.ID, course.ID, nil)
	questions := loadQuestions(t, test.ID)

	status, body := request(t, "POST", fmt.Sprintf("/api/tests/%d/start", test.ID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	attemptID := uint(body["data"].(map[string]interface{})["attempt"].(map[string]interface{})["id"].(float64))

	answerPath := fmt.Sprintf("/api/attempts/%d/answers", attemptID)
	status, _ = request(t, "POST", answerPath, learnerToken, fiber.Map{
		"question_id":        questions[0].ID,
		"selected_option_id": correctOptionID(questions[0]),
	})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = request(t, "POST", answerPath, learnerToken, fiber.Map{
		"question_id":        questions[1].ID,
		"selected_option_id": wrongOptionID(questions[1]),
	})
	require.Equal(t, fiber.StatusOK, status)

	// The test is retired mid-attempt; its passing score must still apply
	require.NoError(t, db.Delete(&models.Test{}, test.ID).Error)

	status, body = request(t, "POST", fmt.Sprintf("/api/attempts/%d/submit", attemptID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	score := body["data"].(map[string]interface{})["score"].(map[string]interface{})
	assert.Equal(t, float64(50), score["percentage"])
	assert.Equal(t, float64(60), score["passing_score"])
	assert.Equal(t, false, score["passed"])

	status, body = request(t, "GET", fmt.Sprintf("/api/attempts/%d/result", attemptID), learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	result := body["data"].(map[string]interface{})
	assert.Equal(t, float64(60), result["passing_score"])
	assert.Equal(t, false, result["passed"])
}

func TestCatalogHidesUnavailableTests(t *testing.T) {
	requireDB(t)

	instructor, _ := createUser(t, "catalog_instructor", models.RoleInstructor)
	_, learnerToken := createUser(t, "catalog_learner", models.RoleLearner)

	published := createCourse(t, "Published Course")
	unpublished := models.Course{Title: "Hidden Course", Published: false}
	require.NoError(t, db.Create(&unpublished).Error)

	visible := createMCTest(t, instructor.ID, published.ID, nil)
	hiddenParent := createMCTest(t, instructor.ID, unpublished.ID, func(tst *models.Test) {
		tst.Title = "On Hidden Parent"
	})
	inactive := createMCTest(t, instructor.ID, published.ID, func(tst *models.Test) {
		tst.Title = "Inactive"
		tst.IsActive = false
	})

	status, body := request(t, "GET", "/api/tests/available", learnerToken, nil)
	require.Equal(t, fiber.StatusOK, status)

	listed := map[uint]bool{}
	if data, ok := body["data"].([]interface{}); ok {
		for _, item := range data {
			listed[uint(item.(map[string]interface{})["id"].(float64))] = true
		}
	}
	assert.True(t, listed[visible.ID])
	assert.False(t, listed[hiddenParent.ID])
	assert.False(t, listed[inactive.ID])
}
