package controllers

import (
	"errors"
	"project/backend/services"
	"project/backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// respondServiceError translates service errors onto the HTTP taxonomy:
// 422 for payload mismatches, 403 for eligibility denials, 404 for rows the
// caller may not see, 400 for state conflicts, 500 for the rest.
func respondServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, services.ErrNotOwner):
		return utils.NotFound(c, "Not found")
	case errors.Is(err, services.ErrTestUnavailable):
		return utils.Forbidden(c, "Test unavailable")
	case errors.Is(err, services.ErrNoAttemptsLeft):
		return utils.Forbidden(c, "No attempts left")
	case errors.Is(err, services.ErrAlreadySubmitted):
		return utils.BadRequest(c, "Attempt already submitted")
	case errors.Is(err, services.ErrNotInProgress):
		return utils.BadRequest(c, "Attempt is not in progress")
	case errors.Is(err, services.ErrAttemptExpired):
		return utils.BadRequest(c, "Attempt expired")
	case errors.Is(err, services.ErrNotSubmitted):
		return utils.BadRequest(c, "Attempt not yet submitted")
	case errors.Is(err, services.ErrNotAllGraded):
		return utils.BadRequest(c, "Not every answer has been graded")
	case errors.Is(err, services.ErrPayloadMismatch):
		return utils.ValidationError(c, map[string]string{"answer": "payload does not match question type"})
	case errors.Is(err, services.ErrNotGradable):
		return utils.BadRequest(c, "Answer is not manually gradable")
	default:
		return utils.InternalServerError(c, "Could not process request")
	}
}
