package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/asterworks/valuetracker/pkg/extid"
	"github.com/asterworks/valuetracker/pkg/middleware"
	"github.com/asterworks/valuetracker/pkg/registry"
	"github.com/asterworks/valuetracker/pkg/storage"
)

// GetExtensionID extracts the extension id from the request header. The
// header must be present and already clean; cleanable-but-dirty values are
// rejected rather than sanitized.
func GetExtensionID(c echo.Context) (string, error) {
	id := c.Request().Header.Get(middleware.HeaderExtensionID)
	if id == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "x-extension-id header is required")
	}

	if !extid.IsValidID(id) {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid x-extension-id header %q", id)
	}

	return id, nil
}

// StrictID returns a path parameter that must match the identifier pattern.
func StrictID(c echo.Context, param string) (string, error) {
	value := c.Param(param)
	if value == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	if !extid.IsValidID(value) {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must match [A-Za-z0-9_-]", param)
	}

	return value, nil
}

// PathKey returns a path parameter that only has to be non-empty. Data bag
// keys are not restricted to the identifier pattern.
func PathKey(c echo.Context, param string) (string, error) {
	value := c.Param(param)
	if value == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	return value, nil
}

// ResolveStore returns the store for the request's extension header, or a 404
// when the extension never registered.
func ResolveStore(c echo.Context, reg *registry.Registry) (*storage.Store, error) {
	extensionID, err := GetExtensionID(c)
	if err != nil {
		return nil, err
	}

	store, err := reg.Get(extensionID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no store registered for extension %q", extensionID)
	}

	return store, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// NotFound returns a 404 Not Found error
func NotFound(message string) error {
	return httperror.NewHTTPError(http.StatusNotFound, message)
}
