package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/asterworks/valuetracker/pkg/crossext"
)

// CrossExtensionHandler exposes read-only lookups into other extensions'
// stores. The target extension id comes from the path instead of the header,
// and lookups into extensions that never registered answer with neutral
// values rather than errors.
type CrossExtensionHandler struct {
	reader *crossext.Reader
	logger ectologger.Logger
}

// NewCrossExtensionHandler creates a new CrossExtensionHandler
func NewCrossExtensionHandler(reader *crossext.Reader, logger ectologger.Logger) *CrossExtensionHandler {
	return &CrossExtensionHandler{
		reader: reader,
		logger: logger,
	}
}

// RegisterRoutes registers the routes for the CrossExtensionHandler
func (h *CrossExtensionHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/cross-extension/characters/:extensionId", h.GetAllCharacters)
	g.GET("/cross-extension/characters/:extensionId/:characterId", h.GetFullCharacter)
	g.GET("/cross-extension/characters/:extensionId/:characterId/instances", h.GetInstancesByCharacter)
	g.GET("/cross-extension/instances/:extensionId/:instanceId", h.GetFullInstance)
	g.GET("/cross-extension/data/:extensionId/:instanceId", h.GetData)
	g.GET("/cross-extension/data/:extensionId/:instanceId/:key", h.GetDataValue)
}

// GetAllCharacters lists another extension's characters. Unknown extensions
// read as an empty list.
func (h *CrossExtensionHandler) GetAllCharacters(c echo.Context) error {
	ctx := c.Request().Context()

	extensionID, err := StrictID(c, "extensionId")
	if err != nil {
		return err
	}

	characters, err := h.reader.GetAllCharacters(ctx, extensionID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, characters)
}

// GetFullCharacter returns another extension's character with its instances
// and data. A registered extension without the character is a 404; an unknown
// extension reads as null.
func (h *CrossExtensionHandler) GetFullCharacter(c echo.Context) error {
	ctx := c.Request().Context()

	extensionID, err := StrictID(c, "extensionId")
	if err != nil {
		return err
	}

	characterID, err := StrictID(c, "characterId")
	if err != nil {
		return err
	}

	character, err := h.reader.GetFullCharacter(ctx, extensionID, characterID)
	if err != nil {
		return err
	}
	if character == nil && h.reader.HasStore(extensionID) {
		return NotFound("character not found")
	}

	return SuccessResponse(c, character)
}

// GetInstancesByCharacter lists a character's instances in another
// extension's store
func (h *CrossExtensionHandler) GetInstancesByCharacter(c echo.Context) error {
	ctx := c.Request().Context()

	extensionID, err := StrictID(c, "extensionId")
	if err != nil {
		return err
	}

	characterID, err := StrictID(c, "characterId")
	if err != nil {
		return err
	}

	instances, err := h.reader.GetInstancesByCharacter(ctx, extensionID, characterID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, instances)
}

// GetFullInstance returns another extension's instance with its data bag
func (h *CrossExtensionHandler) GetFullInstance(c echo.Context) error {
	ctx := c.Request().Context()

	extensionID, err := StrictID(c, "extensionId")
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	instance, err := h.reader.GetFullInstance(ctx, extensionID, instanceID)
	if err != nil {
		return err
	}
	if instance == nil && h.reader.HasStore(extensionID) {
		return NotFound("instance not found")
	}

	return SuccessResponse(c, instance)
}

// GetData returns an instance's data bag from another extension's store
func (h *CrossExtensionHandler) GetData(c echo.Context) error {
	ctx := c.Request().Context()

	extensionID, err := StrictID(c, "extensionId")
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	data, err := h.reader.GetData(ctx, extensionID, instanceID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, data)
}

// GetDataValue returns one value from another extension's store
func (h *CrossExtensionHandler) GetDataValue(c echo.Context) error {
	ctx := c.Request().Context()

	extensionID, err := StrictID(c, "extensionId")
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	key, err := PathKey(c, "key")
	if err != nil {
		return err
	}

	value, found, err := h.reader.GetDataValue(ctx, extensionID, instanceID, key)
	if err != nil {
		return err
	}
	if !found && h.reader.HasStore(extensionID) {
		return NotFound("data key not found")
	}

	return SuccessResponse(c, DataValueResponse{Key: key, Value: value})
}
