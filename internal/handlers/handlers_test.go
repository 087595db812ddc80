package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appmw "github.com/asterworks/valuetracker/pkg/middleware"
	"github.com/asterworks/valuetracker/pkg/plugin"
)

const testPrefix = "/api/plugins/valuetracker"

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// testAPI wires the plugin into an in-memory echo instance the way the
// standalone server does.
type testAPI struct {
	t *testing.T
	e *echo.Echo
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := getTestLogger()

	p := plugin.New(plugin.Options{
		BaseDir: t.TempDir(),
		Version: "test",
		Logger:  logger,
	})
	t.Cleanup(func() {
		p.Exit(context.Background())
	})

	e := echo.New()
	e.HTTPErrorHandler = appmw.Error(logger)
	e.Use(appmw.Context())

	p.Init(e.Group(testPrefix))

	return &testAPI{t: t, e: e}
}

func (a *testAPI) request(method, path, extensionID string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, testPrefix+path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if extensionID != "" {
		req.Header.Set("x-extension-id", extensionID)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) registerExtension(extensionID string) {
	a.t.Helper()

	rec := a.request(http.MethodPost, "/register", "", map[string]any{"extensionId": extensionID})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
}

func bodyMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func bodyList(t *testing.T, rec *httptest.ResponseRecorder) []any {
	t.Helper()

	var l []any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l), rec.Body.String())
	return l
}

func TestRegisterEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.request(http.MethodPost, "/register", "", map[string]any{"extensionId": "ext-a"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := bodyMap(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ext-a", body["extensionId"])
	assert.NotEmpty(t, body["dbPath"])

	t.Run("SanitizesDirtyID", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/register", "", map[string]any{"extensionId": "../dangerous/path"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "dangerous_path", bodyMap(t, rec)["extensionId"])
	})

	t.Run("RequestedPathIgnored", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/register", "", map[string]any{
			"extensionId": "pathful",
			"dbPath":      "/etc/override.db",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEqual(t, "/etc/override.db", bodyMap(t, rec)["dbPath"])
	})

	t.Run("MissingBodyField", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/register", "", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, bodyMap(t, rec)["error"])
	})
}

func TestDeregisterEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.registerExtension("ext-a")

	rec := api.request(http.MethodDelete, "/register", "", map[string]any{"extensionId": "ext-a"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, bodyMap(t, rec)["success"])

	t.Run("SecondDeregisterIs404", func(t *testing.T) {
		rec := api.request(http.MethodDelete, "/register", "", map[string]any{"extensionId": "ext-a"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("OwnDataEndpointsReport404", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters", "ext-a", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestExtensionHeaderValidation(t *testing.T) {
	api := newTestAPI(t)
	api.registerExtension("ext-a")

	t.Run("MissingHeader", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, bodyMap(t, rec)["error"])
	})

	t.Run("PathLikeHeaderRejected", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters", "invalid/extension/../path", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnregisteredExtension", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters", "never-registered", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("RegisteredExtension", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters", "ext-a", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCharacterEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.registerExtension("ext-a")

	rec := api.request(http.MethodPost, "/characters", "ext-a", map[string]any{"id": "char-1", "name": "Alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := bodyMap(t, rec)
	assert.Equal(t, "char-1", body["id"])
	assert.Equal(t, "Alice", body["name"])

	t.Run("List", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, bodyList(t, rec), 1)
	})

	t.Run("GetFull", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters/char-1", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		character, ok := body["character"].(map[string]any)
		require.True(t, ok, rec.Body.String())
		assert.Equal(t, "char-1", character["id"])
		assert.NotNil(t, body["instances"])
	})

	t.Run("GetMissing", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters/ghost", "ext-a", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("EmptyNameKeepsStoredName", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/characters", "ext-a", map[string]any{"id": "char-1", "name": ""})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Alice", bodyMap(t, rec)["name"])
	})

	t.Run("InvalidIDRejected", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/characters", "ext-a", map[string]any{"id": "bad/id"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		rec := api.request(http.MethodDelete, "/characters/char-1", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, bodyMap(t, rec)["success"])

		rec = api.request(http.MethodDelete, "/characters/char-1", "ext-a", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestInstanceEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.registerExtension("ext-a")

	t.Run("UnknownCharacterRejected", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/instances", "ext-a", map[string]any{"id": "inst-1", "characterId": "ghost"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	rec := api.request(http.MethodPost, "/characters", "ext-a", map[string]any{"id": "char-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.request(http.MethodPost, "/instances", "ext-a", map[string]any{"id": "inst-1", "characterId": "char-1", "name": "main"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "char-1", bodyMap(t, rec)["characterId"])

	t.Run("GetFull", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/instances/inst-1", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		instance, ok := body["instance"].(map[string]any)
		require.True(t, ok, rec.Body.String())
		assert.Equal(t, "inst-1", instance["id"])
	})

	t.Run("ListByCharacter", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/characters/char-1/instances", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, bodyList(t, rec), 1)
	})

	t.Run("DeleteByCharacter", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/instances", "ext-a", map[string]any{"id": "inst-2", "characterId": "char-1"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = api.request(http.MethodDelete, "/characters/char-1/instances", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(2), body["deletedCount"])
	})

	t.Run("DeleteByMissingCharacter", func(t *testing.T) {
		rec := api.request(http.MethodDelete, "/characters/ghost/instances", "ext-a", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("DeleteMissingInstance", func(t *testing.T) {
		rec := api.request(http.MethodDelete, "/instances/inst-1", "ext-a", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestInstanceDataEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.registerExtension("ext-a")

	rec := api.request(http.MethodPost, "/characters", "ext-a", map[string]any{"id": "char-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.request(http.MethodPost, "/instances", "ext-a", map[string]any{"id": "inst-1", "characterId": "char-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.request(http.MethodPost, "/instances/inst-1/data", "ext-a", map[string]any{"key": "hp", "value": 100})
	require.Equal(t, http.StatusOK, rec.Code)

	body := bodyMap(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "hp", body["key"])
	assert.Equal(t, float64(100), body["value"])

	t.Run("GetBag", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/instances/inst-1/data", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"hp": float64(100)}, bodyMap(t, rec))
	})

	t.Run("GetSingleValue", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/instances/inst-1/data/hp", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		assert.Equal(t, "hp", body["key"])
		assert.Equal(t, float64(100), body["value"])
	})

	t.Run("GetMissingKey", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/instances/inst-1/data/ghost", "ext-a", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("PutKeyFromPath", func(t *testing.T) {
		rec := api.request(http.MethodPut, "/instances/inst-1/data/mood", "ext-a", map[string]any{"value": "calm"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = api.request(http.MethodGet, "/instances/inst-1/data/mood", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "calm", bodyMap(t, rec)["value"])
	})

	t.Run("WriteToUnknownInstance", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/instances/ghost/data", "ext-a", map[string]any{"key": "hp", "value": 1})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Override", func(t *testing.T) {
		rec := api.request(http.MethodPut, "/instances/inst-1/data/override", "ext-a", map[string]any{"fresh": true})
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		assert.Equal(t, map[string]any{"fresh": true}, body["data"])
	})

	t.Run("OverrideWithArrayBody", func(t *testing.T) {
		rec := api.request(http.MethodPut, "/instances/inst-1/data/override", "ext-a", []any{"not", "an", "object"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Merge", func(t *testing.T) {
		rec := api.request(http.MethodPut, "/instances/inst-1/data/merge", "ext-a", map[string]any{"extra": float64(7)})
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		assert.Equal(t, map[string]any{"fresh": true, "extra": float64(7)}, body["data"])
	})

	t.Run("Remove", func(t *testing.T) {
		rec := api.request(http.MethodPut, "/instances/inst-1/data/remove", "ext-a", map[string]any{"keys": []string{"extra", "ghost"}})
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		assert.Equal(t, float64(1), body["removedCount"])
	})

	t.Run("RemoveWithoutKeysField", func(t *testing.T) {
		rec := api.request(http.MethodPut, "/instances/inst-1/data/remove", "ext-a", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("DeleteValue", func(t *testing.T) {
		rec := api.request(http.MethodDelete, "/instances/inst-1/data/fresh", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = api.request(http.MethodDelete, "/instances/inst-1/data/fresh", "ext-a", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Clear", func(t *testing.T) {
		rec := api.request(http.MethodPut, "/instances/inst-1/data/merge", "ext-a", map[string]any{"a": 1, "b": 2})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = api.request(http.MethodDelete, "/instances/inst-1/data", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, bodyMap(t, rec)["cleared"])

		rec = api.request(http.MethodGet, "/instances/inst-1/data", "ext-a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, bodyMap(t, rec))
	})
}

func TestCrossExtensionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.registerExtension("ext-a")

	rec := api.request(http.MethodPost, "/characters", "ext-a", map[string]any{"id": "char-1", "name": "Alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.request(http.MethodPost, "/instances", "ext-a", map[string]any{"id": "inst-1", "characterId": "char-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.request(http.MethodPost, "/instances/inst-1/data", "ext-a", map[string]any{"key": "hp", "value": 100})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("ReadAnotherExtensionsCharacters", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/cross-extension/characters/ext-a", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, bodyList(t, rec), 1)
	})

	t.Run("UnknownExtensionReadsEmpty", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/cross-extension/characters/non-existent-extension", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, bodyList(t, rec))
	})

	t.Run("FullCharacter", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/cross-extension/characters/ext-a/char-1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		character, ok := body["character"].(map[string]any)
		require.True(t, ok, rec.Body.String())
		assert.Equal(t, "Alice", character["name"])
	})

	t.Run("FullCharacterMissingIs404", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/cross-extension/characters/ext-a/ghost", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("FullCharacterUnknownExtensionIsNull", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/cross-extension/characters/non-existent-extension/char-1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "null\n", rec.Body.String())
	})

	t.Run("InstancesByCharacter", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/cross-extension/characters/ext-a/char-1/instances", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, bodyList(t, rec), 1)
	})

	t.Run("DataBag", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/cross-extension/data/ext-a/inst-1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"hp": float64(100)}, bodyMap(t, rec))
	})

	t.Run("DataValue", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/cross-extension/data/ext-a/inst-1/hp", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(100), bodyMap(t, rec)["value"])
	})

	t.Run("WritesAreNotExposed", func(t *testing.T) {
		rec := api.request(http.MethodPost, "/cross-extension/characters/ext-a", "", map[string]any{"id": "sneaky"})
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestProbeAndInfo(t *testing.T) {
	api := newTestAPI(t)

	t.Run("Probe", func(t *testing.T) {
		rec := api.request(http.MethodGet, "/probe", "", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("Info", func(t *testing.T) {
		api.registerExtension("ext-a")

		rec := api.request(http.MethodGet, "/info", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := bodyMap(t, rec)
		assert.Equal(t, "valuetracker", body["id"])
		assert.Equal(t, float64(1), body["extensions"])
	})
}
