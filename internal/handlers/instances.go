package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/asterworks/valuetracker/pkg/extid"
	"github.com/asterworks/valuetracker/pkg/models"
	"github.com/asterworks/valuetracker/pkg/registry"
	"github.com/asterworks/valuetracker/pkg/utils"
)

// InstanceUpsertRequest is the body for creating or updating an instance
type InstanceUpsertRequest struct {
	ID          string  `json:"id" validate:"required"`
	CharacterID string  `json:"characterId" validate:"required"`
	Name        *string `json:"name"`
}

// InstancesHandler handles instance requests
type InstancesHandler struct {
	registry *registry.Registry
	logger   ectologger.Logger
}

// NewInstancesHandler creates a new InstancesHandler
func NewInstancesHandler(reg *registry.Registry, logger ectologger.Logger) *InstancesHandler {
	return &InstancesHandler{
		registry: reg,
		logger:   logger,
	}
}

// RegisterRoutes registers the routes for the InstancesHandler
func (h *InstancesHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/instances", h.UpsertInstance)
	g.GET("/instances/:instanceId", h.GetInstance)
	g.DELETE("/instances/:instanceId", h.DeleteInstance)
	g.GET("/characters/:characterId/instances", h.ListInstancesByCharacter)
	g.DELETE("/characters/:characterId/instances", h.DeleteInstancesByCharacter)
}

// GetInstance returns an instance together with its data bag
func (h *InstancesHandler) GetInstance(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	id, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	instance, err := store.GetFullInstance(ctx, id)
	if err != nil {
		return err
	}
	if instance == nil {
		return NotFound("instance not found")
	}

	return SuccessResponse(c, instance)
}

// UpsertInstance creates or updates an instance. The parent character must
// already exist.
func (h *InstancesHandler) UpsertInstance(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[InstanceUpsertRequest](c)
	if err != nil {
		return err
	}

	if !extid.IsValidID(req.ID) {
		return BadRequest("invalid instance id: must match [A-Za-z0-9_-]")
	}
	if !extid.IsValidID(req.CharacterID) {
		return BadRequest("invalid character id: must match [A-Za-z0-9_-]")
	}

	if req.Name != nil && *req.Name == "" {
		req.Name = nil
	}

	instance, err := store.UpsertInstance(ctx, models.InstanceUpsert{
		ID:          req.ID,
		CharacterID: req.CharacterID,
		Name:        req.Name,
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, instance)
}

// DeleteInstance removes an instance and its data rows
func (h *InstancesHandler) DeleteInstance(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	id, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	deleted, err := store.DeleteInstance(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return NotFound("instance not found")
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// ListInstancesByCharacter returns the instances belonging to a character
func (h *InstancesHandler) ListInstancesByCharacter(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	characterID, err := StrictID(c, "characterId")
	if err != nil {
		return err
	}

	instances, err := store.GetInstancesByCharacter(ctx, characterID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, instances)
}

// DeleteInstancesByCharacter removes every instance of a character and
// reports how many were deleted
func (h *InstancesHandler) DeleteInstancesByCharacter(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	characterID, err := StrictID(c, "characterId")
	if err != nil {
		return err
	}

	character, err := store.GetCharacter(ctx, characterID)
	if err != nil {
		return err
	}
	if character == nil {
		return NotFound("character not found")
	}

	count, err := store.DeleteInstancesByCharacter(ctx, characterID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"deletedCount": count,
	})
}
