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

// CharacterUpsertRequest is the body for creating or updating a character
type CharacterUpsertRequest struct {
	ID   string  `json:"id" validate:"required"`
	Name *string `json:"name"`
}

// CharactersHandler handles character requests
type CharactersHandler struct {
	registry *registry.Registry
	logger   ectologger.Logger
}

// NewCharactersHandler creates a new CharactersHandler
func NewCharactersHandler(reg *registry.Registry, logger ectologger.Logger) *CharactersHandler {
	return &CharactersHandler{
		registry: reg,
		logger:   logger,
	}
}

// RegisterRoutes registers the routes for the CharactersHandler
func (h *CharactersHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/characters", h.ListCharacters)
	g.POST("/characters", h.UpsertCharacter)
	g.GET("/characters/:characterId", h.GetCharacter)
	g.DELETE("/characters/:characterId", h.DeleteCharacter)
}

// ListCharacters returns every character in the extension's store
func (h *CharactersHandler) ListCharacters(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	characters, err := store.GetAllCharacters(ctx)
	if err != nil {
		return err
	}

	return SuccessResponse(c, characters)
}

// GetCharacter returns a character with its instances and their data bags
func (h *CharactersHandler) GetCharacter(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	id, err := StrictID(c, "characterId")
	if err != nil {
		return err
	}

	character, err := store.GetFullCharacter(ctx, id)
	if err != nil {
		return err
	}
	if character == nil {
		return NotFound("character not found")
	}

	return SuccessResponse(c, character)
}

// UpsertCharacter creates or updates a character. An empty name in the body
// is treated as absent so it never overwrites a stored name.
func (h *CharactersHandler) UpsertCharacter(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[CharacterUpsertRequest](c)
	if err != nil {
		return err
	}

	if !extid.IsValidID(req.ID) {
		return BadRequest("invalid character id: must match [A-Za-z0-9_-]")
	}

	if req.Name != nil && *req.Name == "" {
		req.Name = nil
	}

	character, err := store.UpsertCharacter(ctx, models.CharacterUpsert{
		ID:   req.ID,
		Name: req.Name,
	})
	if err != nil {
		return err
	}

	return SuccessResponse(c, character)
}

// DeleteCharacter removes a character along with its instances and data rows
func (h *CharactersHandler) DeleteCharacter(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	id, err := StrictID(c, "characterId")
	if err != nil {
		return err
	}

	deleted, err := store.DeleteCharacter(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return NotFound("character not found")
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
