package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/asterworks/valuetracker/pkg/registry"
	"github.com/asterworks/valuetracker/pkg/utils"
)

// RegisterRequest is the body for extension registration. DBPath is accepted
// for wire compatibility but the storage location is always derived from the
// extension id.
type RegisterRequest struct {
	ExtensionID string `json:"extensionId" validate:"required"`
	DBPath      string `json:"dbPath"`
}

// DeregisterRequest is the body for extension deregistration
type DeregisterRequest struct {
	ExtensionID string `json:"extensionId" validate:"required"`
}

// RegisterResponse reports the outcome of a registration
type RegisterResponse struct {
	Success     bool   `json:"success"`
	ExtensionID string `json:"extensionId"`
	DBPath      string `json:"dbPath"`
}

// RegisterHandler handles extension registration requests
type RegisterHandler struct {
	registry *registry.Registry
	logger   ectologger.Logger
}

// NewRegisterHandler creates a new RegisterHandler
func NewRegisterHandler(reg *registry.Registry, logger ectologger.Logger) *RegisterHandler {
	return &RegisterHandler{
		registry: reg,
		logger:   logger,
	}
}

// RegisterRoutes registers the routes for the RegisterHandler
func (h *RegisterHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.DELETE("/register", h.Deregister)
}

// Register opens (or replaces) the store for an extension. The extension id
// from the body is sanitized before use, so ids that merely need cleaning are
// accepted here even though the per-request header is strict.
func (h *RegisterHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[RegisterRequest](c)
	if err != nil {
		return err
	}

	store, err := h.registry.RegisterWithPath(ctx, req.ExtensionID, req.DBPath)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, RegisterResponse{
		Success:     true,
		ExtensionID: store.ExtensionID(),
		DBPath:      store.DBPath(),
	})
}

// Deregister removes an extension from the registry. The underlying store is
// left open; callers that want the file released must close it themselves.
func (h *RegisterHandler) Deregister(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[DeregisterRequest](c)
	if err != nil {
		return err
	}

	removed, err := h.registry.Deregister(ctx, req.ExtensionID)
	if err != nil {
		return err
	}
	if !removed {
		return NotFound("extension is not registered")
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
