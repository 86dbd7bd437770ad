package routes

import (
	"project/backend/config"
	"project/backend/controllers"
	"project/backend/middleware"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	// Auth routes
	authController := controllers.NewAuthController(db, cfg)
	app.Post("/api/auth/register", authController.Register)
	app.Post("/api/auth/login", authController.Login)

	// Middleware
	authMiddleware := middleware.AuthMiddleware(cfg)
	instructorMiddleware := middleware.InstructorMiddleware(db, cfg)

	// User routes
	userController := controllers.NewUserController(db, cfg)
	app.Get("/api/user/profile", authMiddleware, userController.GetProfile)
	app.Put("/api/user/profile", authMiddleware, userController.UpdateProfile)
	app.Get("/api/users/:id/attempts", authMiddleware, userController.GetUserAttempts)

	// Progress routes
	progressController := controllers.NewProgressController(db, cfg)
	app.Get("/api/progress", authMiddleware, progressController.GetProgress)

	// Tests routes
	testsController := controllers.NewTestsController(db, cfg)
	tests := app.Group("/api/tests", authMiddleware)
	tests.Get("/available", testsController.GetAvailableTests)
	tests.Get("/:id", testsController.GetTestDetails)

	// Attempt routes
	attemptsController := controllers.NewAttemptsController(db, cfg)
	tests.Post("/:id/start", attemptsController.StartAttempt)
	attempts := app.Group("/api/attempts", authMiddleware)
	attempts.Get("/:id", attemptsController.GetAttempt)
	attempts.Post("/:id/answers", attemptsController.SaveAnswer)
	attempts.Post("/:id/submit", attemptsController.SubmitAttempt)
	attempts.Get("/:id/result", attemptsController.GetResult)

	// Admin routes for tests
	adminTests := app.Group("/api/admin/tests", authMiddleware, instructorMiddleware)
	adminTests.Post("/", testsController.CreateTest)
	adminTests.Put("/:id", testsController.UpdateTest)
	adminTests.Delete("/:id", testsController.DeleteTest)
	adminTests.Post("/:id/questions", testsController.AddQuestion)
	adminTests.Put("/:id/questions/:questionId", testsController.UpdateQuestion)
	adminTests.Get("/:id/analytics", testsController.GetTestAnalytics)

	// Admin routes for grading
	gradingController := controllers.NewGradingController(db, cfg)
	adminGrading := app.Group("/api/admin/grading", authMiddleware, instructorMiddleware)
	adminGrading.Get("/pending", gradingController.GetPendingAnswers)
	adminGrading.Post("/answers/:id", gradingController.GradeAnswer)
	adminGrading.Post("/attempts/:id/complete", gradingController.CompleteGrading)

	// Admin routes for learning entities
	parentsController := controllers.NewParentsController(db, cfg)
	adminParents := app.Group("/api/admin/parents/:kind", authMiddleware, instructorMiddleware)
	adminParents.Get("/", parentsController.ListParents)
	adminParents.Post("/", parentsController.CreateParent)
	adminParents.Get("/:id", parentsController.GetParent)
	adminParents.Put("/:id", parentsController.UpdateParent)
	adminParents.Delete("/:id", parentsController.DeleteParent)
}
