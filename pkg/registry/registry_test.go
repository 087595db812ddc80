package registry_test

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asterworks/valuetracker/pkg/models"
	"github.com/asterworks/valuetracker/pkg/registry"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg := registry.New(t.TempDir(), getTestLogger())
	t.Cleanup(func() {
		reg.CloseAll(context.Background())
	})

	return reg
}

func TestRegister(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	store, err := reg.Register(ctx, "ext-a")
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, "ext-a", store.ExtensionID())
	assert.True(t, store.IsOpen())
	assert.Equal(t, 1, reg.Size())

	t.Run("GetReturnsSameStore", func(t *testing.T) {
		got, err := reg.Get("ext-a")
		require.NoError(t, err)
		assert.Same(t, store, got)
	})

	t.Run("SanitizedIDRegisters", func(t *testing.T) {
		dirty, err := reg.Register(ctx, "../dangerous/path")
		require.NoError(t, err)
		assert.Equal(t, "dangerous_path", dirty.ExtensionID())

		got, err := reg.Get("dangerous_path")
		require.NoError(t, err)
		assert.Same(t, dirty, got)
	})

	t.Run("EmptyIDRejected", func(t *testing.T) {
		_, err := reg.Register(ctx, "")
		assert.Error(t, err)
	})
}

func TestRegister_ReplacesAndClosesExisting(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	first, err := reg.Register(ctx, "ext-a")
	require.NoError(t, err)

	second, err := reg.Register(ctx, "ext-a")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.False(t, first.IsOpen(), "the replaced store must release its file handle")
	assert.True(t, second.IsOpen())
	assert.Equal(t, 1, reg.Size())
}

func TestStoreIsolation(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	storeA, err := reg.Register(ctx, "ext-a")
	require.NoError(t, err)
	storeB, err := reg.Register(ctx, "ext-b")
	require.NoError(t, err)

	_, err = storeA.UpsertCharacter(ctx, models.CharacterUpsert{ID: "shared-id", Name: strptr("from A")})
	require.NoError(t, err)
	_, err = storeB.UpsertCharacter(ctx, models.CharacterUpsert{ID: "shared-id", Name: strptr("from B")})
	require.NoError(t, err)

	characterA, err := storeA.GetCharacter(ctx, "shared-id")
	require.NoError(t, err)
	characterB, err := storeB.GetCharacter(ctx, "shared-id")
	require.NoError(t, err)

	assert.Equal(t, "from A", *characterA.Name)
	assert.Equal(t, "from B", *characterB.Name)
	assert.NotEqual(t, storeA.DBPath(), storeB.DBPath())
}

func TestDeregister(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	store, err := reg.Register(ctx, "ext-a")
	require.NoError(t, err)

	removed, err := reg.Deregister(ctx, "ext-a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 0, reg.Size())

	t.Run("StoreStaysOpen", func(t *testing.T) {
		assert.True(t, store.IsOpen(), "deregistering must not close the store")
	})

	t.Run("GetReturnsNil", func(t *testing.T) {
		got, err := reg.Get("ext-a")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SecondDeregisterReportsMissing", func(t *testing.T) {
		removed, err := reg.Deregister(ctx, "ext-a")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	require.NoError(t, store.Close(ctx))
}

func TestGet_Unregistered(t *testing.T) {
	reg := newTestRegistry(t)

	store, err := reg.Get("never-registered")
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestExtensionIDs(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		_, err := reg.Register(ctx, id)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.ExtensionIDs())
}

func TestCloseAll(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	storeA, err := reg.Register(ctx, "ext-a")
	require.NoError(t, err)
	storeB, err := reg.Register(ctx, "ext-b")
	require.NoError(t, err)

	reg.CloseAll(ctx)

	assert.False(t, storeA.IsOpen())
	assert.False(t, storeB.IsOpen())
	assert.Equal(t, 0, reg.Size())

	t.Run("Idempotent", func(t *testing.T) {
		reg.CloseAll(ctx)
		assert.Equal(t, 0, reg.Size())
	})

	t.Run("RegisterAfterCloseAll", func(t *testing.T) {
		store, err := reg.Register(ctx, "ext-a")
		require.NoError(t, err)
		assert.True(t, store.IsOpen())
	})
}

func strptr(s string) *string {
	return &s
}
