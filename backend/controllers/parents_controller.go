package controllers

import (
	"project/backend/config"
	"project/backend/models"
	"project/backend/utils"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ParentsController manages the learning entities tests attach to. All four
// kinds share one shape, so the handlers dispatch on the :kind path segment.
type ParentsController struct {
	DB  *gorm.DB
	Cfg *config.Config
}

func NewParentsController(db *gorm.DB, cfg *config.Config) *ParentsController {
	return &ParentsController{DB: db, Cfg: cfg}
}

type parentInput struct {
	Title       string `json:"title" validate:"required,min=3"`
	Description string `json:"description"`
	Published   *bool  `json:"published"`
}

func parentKindParam(c *fiber.Ctx) (models.ParentKind, error) {
	kind := models.ParentKind(c.Params("kind"))
	if !kind.Valid() {
		return "", fiber.ErrBadRequest
	}
	return kind, nil
}

func parentView(kind models.ParentKind, id uint, title, description string, published bool) fiber.Map {
	return fiber.Map{
		"id":          id,
		"kind":        kind,
		"title":       title,
		"description": description,
		"published":   published,
	}
}

// ListParents returns every entity of the given kind.
func (pc *ParentsController) ListParents(c *fiber.Ctx) error {
	kind, err := parentKindParam(c)
	if err != nil {
		return utils.BadRequest(c, "Unknown parent kind")
	}

	var result []fiber.Map
	switch kind {
	case models.ParentCourse:
		var rows []models.Course
		if err := pc.DB.Find(&rows).Error; err != nil {
			return utils.InternalServerError(c, "Could not query database")
		}
		for _, r := range rows {
			result = append(result, parentView(kind, r.ID, r.Title, r.Description, r.Published))
		}
	case models.ParentBootcamp:
		var rows []models.Bootcamp
		if err := pc.DB.Find(&rows).Error; err != nil {
			return utils.InternalServerError(c, "Could not query database")
		}
		for _, r := range rows {
			result = append(result, parentView(kind, r.ID, r.Title, r.Description, r.Published))
		}
	case models.ParentProgram:
		var rows []models.Program
		if err := pc.DB.Find(&rows).Error; err != nil {
			return utils.InternalServerError(c, "Could not query database")
		}
		for _, r := range rows {
			result = append(result, parentView(kind, r.ID, r.Title, r.Description, r.Published))
		}
	case models.ParentWorkshop:
		var rows []models.Workshop
		if err := pc.DB.Find(&rows).Error; err != nil {
			return utils.InternalServerError(c, "Could not query database")
		}
		for _, r := range rows {
			result = append(result, parentView(kind, r.ID, r.Title, r.Description, r.Published))
		}
	}

	return utils.Success(c, fiber.StatusOK, result)
}

// CreateParent creates a new entity of the given kind.
func (pc *ParentsController) CreateParent(c *fiber.Ctx) error {
	kind, err := parentKindParam(c)
	if err != nil {
		return utils.BadRequest(c, "Unknown parent kind")
	}

	var input parentInput
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}
	if fields := utils.ValidateStruct(input); fields != nil {
		return utils.ValidationError(c, fields)
	}

	published := true
	if input.Published != nil {
		published = *input.Published
	}

	var id uint
	switch kind {
	case models.ParentCourse:
		row := models.Course{Title: input.Title, Description: input.Description, Published: published}
		if err := pc.DB.Create(&row).Error; err != nil {
			return utils.InternalServerError(c, "Could not create entity")
		}
		id = row.ID
	case models.ParentBootcamp:
		row := models.Bootcamp{Title: input.Title, Description: input.Description, Published: published}
		if err := pc.DB.Create(&row).Error; err != nil {
			return utils.InternalServerError(c, "Could not create entity")
		}
		id = row.ID
	case models.ParentProgram:
		row := models.Program{Title: input.Title, Description: input.Description, Published: published}
		if err := pc.DB.Create(&row).Error; err != nil {
			return utils.InternalServerError(c, "Could not create entity")
		}
		id = row.ID
	case models.ParentWorkshop:
		row := models.Workshop{Title: input.Title, Description: input.Description, Published: published}
		if err := pc.DB.Create(&row).Error; err != nil {
			return utils.InternalServerError(c, "Could not create entity")
		}
		id = row.ID
	}

	return utils.Created(c, parentView(kind, id, input.Title, input.Description, published))
}

// GetParent returns one entity with the tests attached to it.
func (pc *ParentsController) GetParent(c *fiber.Ctx) error {
	kind, err := parentKindParam(c)
	if err != nil {
		return utils.BadRequest(c, "Unknown parent kind")
	}

	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid ID")
	}

	parent, err := models.ResolveParent(pc.DB, kind, uint(id))
	if err != nil {
		return utils.NotFound(c, "Entity not found")
	}

	var tests []models.Test
	pc.DB.Where("parent_kind = ? AND parent_id = ?", kind, id).Find(&tests)

	testViews := make([]fiber.Map, 0, len(tests))
	for i := range tests {
		testViews = append(testViews, testPublicView(&tests[i]))
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"id":        id,
		"kind":      kind,
		"title":     parent.LearnableTitle(),
		"published": parent.IsPublished(),
		"tests":     testViews,
	})
}

// UpdateParent updates title, description or published on one entity.
func (pc *ParentsController) UpdateParent(c *fiber.Ctx) error {
	kind, err := parentKindParam(c)
	if err != nil {
		return utils.BadRequest(c, "Unknown parent kind")
	}

	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid ID")
	}

	var input struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Published   *bool   `json:"published"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "Cannot parse JSON")
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Published != nil {
		updates["published"] = *input.Published
	}
	if len(updates) == 0 {
		return utils.BadRequest(c, "Nothing to update")
	}

	if _, err := models.ResolveParent(pc.DB, kind, uint(id)); err != nil {
		return utils.NotFound(c, "Entity not found")
	}

	var dbErr error
	switch kind {
	case models.ParentCourse:
		dbErr = pc.DB.Model(&models.Course{}).Where("id = ?", id).Updates(updates).Error
	case models.ParentBootcamp:
		dbErr = pc.DB.Model(&models.Bootcamp{}).Where("id = ?", id).Updates(updates).Error
	case models.ParentProgram:
		dbErr = pc.DB.Model(&models.Program{}).Where("id = ?", id).Updates(updates).Error
	case models.ParentWorkshop:
		dbErr = pc.DB.Model(&models.Workshop{}).Where("id = ?", id).Updates(updates).Error
	}
	if dbErr != nil {
		return utils.InternalServerError(c, "Could not update entity")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "Entity updated"})
}

// DeleteParent soft-deletes one entity. Attached tests stay but stop showing
// in the learner catalog once their parent is gone.
func (pc *ParentsController) DeleteParent(c *fiber.Ctx) error {
	kind, err := parentKindParam(c)
	if err != nil {
		return utils.BadRequest(c, "Unknown parent kind")
	}

	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return utils.BadRequest(c, "Invalid ID")
	}

	if _, err := models.ResolveParent(pc.DB, kind, uint(id)); err != nil {
		return utils.NotFound(c, "Entity not found")
	}

	var dbErr error
	switch kind {
	case models.ParentCourse:
		dbErr = pc.DB.Delete(&models.Course{}, id).Error
	case models.ParentBootcamp:
		dbErr = pc.DB.Delete(&models.Bootcamp{}, id).Error
	case models.ParentProgram:
		dbErr = pc.DB.Delete(&models.Program{}, id).Error
	case models.ParentWorkshop:
		dbErr = pc.DB.Delete(&models.Workshop{}, id).Error
	}
	if dbErr != nil {
		return utils.InternalServerError(c, "Could not delete entity")
	}

	return utils.NoContent(c)
}
