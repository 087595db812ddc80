package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/asterworks/valuetracker/pkg/registry"
	"github.com/asterworks/valuetracker/pkg/storage"
	"github.com/asterworks/valuetracker/pkg/utils"
)

// UpsertDataRequest is the body for writing a key/value pair. Value is
// intentionally not required; storing an explicit null is allowed.
type UpsertDataRequest struct {
	Key   string `json:"key" validate:"required"`
	Value any    `json:"value"`
}

// SetDataValueRequest is the body for writing a value under a key taken from
// the path
type SetDataValueRequest struct {
	Value any `json:"value"`
}

// RemoveKeysRequest is the body for removing a batch of keys
type RemoveKeysRequest struct {
	Keys []string `json:"keys" validate:"required"`
}

// DataValueResponse carries a single decoded value
type DataValueResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// InstanceDataHandler handles data bag requests
type InstanceDataHandler struct {
	registry *registry.Registry
	logger   ectologger.Logger
}

// NewInstanceDataHandler creates a new InstanceDataHandler
func NewInstanceDataHandler(reg *registry.Registry, logger ectologger.Logger) *InstanceDataHandler {
	return &InstanceDataHandler{
		registry: reg,
		logger:   logger,
	}
}

// RegisterRoutes registers the routes for the InstanceDataHandler. The
// override, merge and remove paths are static and therefore shadow the :key
// parameter for those three names.
func (h *InstanceDataHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/instances/:instanceId/data", h.GetData)
	g.POST("/instances/:instanceId/data", h.UpsertData)
	g.PUT("/instances/:instanceId/data", h.UpsertData)
	g.DELETE("/instances/:instanceId/data", h.ClearData)

	g.PUT("/instances/:instanceId/data/override", h.OverrideData)
	g.PUT("/instances/:instanceId/data/merge", h.MergeData)
	g.PUT("/instances/:instanceId/data/remove", h.RemoveData)

	g.GET("/instances/:instanceId/data/:key", h.GetDataValue)
	g.POST("/instances/:instanceId/data/:key", h.SetDataValue)
	g.PUT("/instances/:instanceId/data/:key", h.SetDataValue)
	g.DELETE("/instances/:instanceId/data/:key", h.DeleteDataValue)
}

// GetData returns the full data bag for an instance. Unknown instances read
// as an empty bag rather than an error.
func (h *InstanceDataHandler) GetData(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	data, err := store.GetData(ctx, instanceID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, data)
}

// GetDataValue returns one value from an instance's data bag
func (h *InstanceDataHandler) GetDataValue(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
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

	value, found, err := store.GetDataValue(ctx, instanceID, key)
	if err != nil {
		return err
	}
	if !found {
		return NotFound("data key not found")
	}

	return SuccessResponse(c, DataValueResponse{Key: key, Value: value})
}

// UpsertData writes a single key/value pair taken from the request body
func (h *InstanceDataHandler) UpsertData(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[UpsertDataRequest](c)
	if err != nil {
		return err
	}

	if err := h.requireInstance(ctx, store, instanceID); err != nil {
		return err
	}

	if err := store.UpsertDataValue(ctx, instanceID, req.Key, req.Value); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"key":     req.Key,
		"value":   req.Value,
	})
}

// SetDataValue writes a value under the key taken from the path
func (h *InstanceDataHandler) SetDataValue(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
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

	req, err := utils.BindRequest[SetDataValueRequest](c)
	if err != nil {
		return err
	}

	if err := h.requireInstance(ctx, store, instanceID); err != nil {
		return err
	}

	if err := store.UpsertDataValue(ctx, instanceID, key, req.Value); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"key":     key,
		"value":   req.Value,
	})
}

// DeleteDataValue removes one key from an instance's data bag
func (h *InstanceDataHandler) DeleteDataValue(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
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

	if err := h.requireInstance(ctx, store, instanceID); err != nil {
		return err
	}

	deleted, err := store.DeleteDataValue(ctx, instanceID, key)
	if err != nil {
		return err
	}
	if !deleted {
		return NotFound("data key not found")
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// ClearData removes every key from an instance's data bag
func (h *InstanceDataHandler) ClearData(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	if err := h.requireInstance(ctx, store, instanceID); err != nil {
		return err
	}

	cleared, err := store.ClearInstanceData(ctx, instanceID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"cleared": cleared,
	})
}

// OverrideData replaces the entire data bag with the body mapping
func (h *InstanceDataHandler) OverrideData(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	values, err := bindDataBag(c)
	if err != nil {
		return err
	}

	if err := h.requireInstance(ctx, store, instanceID); err != nil {
		return err
	}

	data, err := store.OverrideInstanceData(ctx, instanceID, values)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

// MergeData writes the body mapping into the data bag, keeping keys it does
// not mention
func (h *InstanceDataHandler) MergeData(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	values, err := bindDataBag(c)
	if err != nil {
		return err
	}

	if err := h.requireInstance(ctx, store, instanceID); err != nil {
		return err
	}

	data, err := store.MergeInstanceData(ctx, instanceID, values)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

// RemoveData deletes a batch of keys and reports how many existed
func (h *InstanceDataHandler) RemoveData(c echo.Context) error {
	ctx := c.Request().Context()

	store, err := ResolveStore(c, h.registry)
	if err != nil {
		return err
	}

	instanceID, err := StrictID(c, "instanceId")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[RemoveKeysRequest](c)
	if err != nil {
		return err
	}

	if err := h.requireInstance(ctx, store, instanceID); err != nil {
		return err
	}

	removed, err := store.RemoveDataValues(ctx, instanceID, req.Keys)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"removedCount": removed,
	})
}

// requireInstance turns writes against unknown instances into a 404 instead
// of silently creating orphan rows
func (h *InstanceDataHandler) requireInstance(ctx context.Context, store *storage.Store, instanceID string) error {
	instance, err := store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance == nil {
		return NotFound("instance not found")
	}
	return nil
}

// bindDataBag decodes the request body as a JSON object. Arrays and scalars
// fail the bind and surface as a 400.
func bindDataBag(c echo.Context) (map[string]any, error) {
	values := map[string]any{}
	if err := c.Bind(&values); err != nil {
		return nil, httperror.WrapError(http.StatusBadRequest, err)
	}
	return values, nil
}
