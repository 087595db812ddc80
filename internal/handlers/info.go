package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/asterworks/valuetracker/pkg/registry"
)

// InfoResponse describes the running plugin
type InfoResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Extensions  int    `json:"extensions"`
}

// InfoHandler answers the host's probe and info requests
type InfoHandler struct {
	id          string
	name        string
	description string
	version     string
	registry    *registry.Registry
}

// NewInfoHandler creates a new InfoHandler
func NewInfoHandler(id, name, description, version string, reg *registry.Registry) *InfoHandler {
	return &InfoHandler{
		id:          id,
		name:        name,
		description: description,
		version:     version,
		registry:    reg,
	}
}

// RegisterRoutes registers the routes for the InfoHandler
func (h *InfoHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/probe", h.Probe)
	g.GET("/info", h.Info)
}

// Probe lets the host check that the plugin is mounted
func (h *InfoHandler) Probe(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// Info reports the plugin descriptor and how many extensions are registered
func (h *InfoHandler) Info(c echo.Context) error {
	return c.JSON(http.StatusOK, InfoResponse{
		ID:          h.id,
		Name:        h.name,
		Description: h.description,
		Version:     h.version,
		Extensions:  h.registry.Size(),
	})
}
