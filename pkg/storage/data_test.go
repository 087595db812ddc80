package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asterworks/valuetracker/pkg/models"
	"github.com/asterworks/valuetracker/pkg/storage"
)

// openStoreWithInstance opens a fresh store holding one character with one
// instance, ready for data bag tests.
func openStoreWithInstance(t *testing.T) *storage.Store {
	t.Helper()

	store := openTestStore(t, "databag")
	ctx := context.Background()

	_, err := store.UpsertCharacter(ctx, models.CharacterUpsert{ID: "char-1"})
	require.NoError(t, err)
	_, err = store.UpsertInstance(ctx, models.InstanceUpsert{ID: "inst-1", CharacterID: "char-1"})
	require.NoError(t, err)

	return store
}

func TestDataValueRoundTrip(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{name: "String", value: "hello", want: "hello"},
		{name: "Number", value: float64(42.5), want: float64(42.5)},
		{name: "Bool", value: true, want: true},
		{name: "Null", value: nil, want: nil},
		{name: "Object", value: map[string]any{"hp": float64(10), "name": "Rex"}, want: map[string]any{"hp": float64(10), "name": "Rex"}},
		{name: "Array", value: []any{float64(1), "two", false}, want: []any{float64(1), "two", false}},
		// Numeric-looking strings are stored in plain form and come back as
		// numbers. This matches files written by earlier releases.
		{name: "NumericString", value: "42", want: float64(42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "k", tt.value))

			got, found, err := store.GetDataValue(ctx, "inst-1", "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetDataValue(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	t.Run("MissingKey", func(t *testing.T) {
		value, found, err := store.GetDataValue(ctx, "inst-1", "ghost")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("StoredNullIsFound", func(t *testing.T) {
		require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "empty", nil))

		value, found, err := store.GetDataValue(ctx, "inst-1", "empty")
		require.NoError(t, err)
		assert.True(t, found, "a stored null is distinguishable from a missing key")
		assert.Nil(t, value)
	})
}

func TestUpsertDataValue_Validation(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	t.Run("EmptyKey", func(t *testing.T) {
		assertBadRequest(t, store.UpsertDataValue(ctx, "inst-1", "", "v"))
	})

	t.Run("EmptyInstanceID", func(t *testing.T) {
		assertBadRequest(t, store.UpsertDataValue(ctx, "", "k", "v"))
	})

	t.Run("UnserializableValue", func(t *testing.T) {
		assertBadRequest(t, store.UpsertDataValue(ctx, "inst-1", "k", make(chan int)))
	})
}

func TestGetData(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	t.Run("UnknownInstance", func(t *testing.T) {
		data, err := store.GetData(ctx, "ghost")
		require.NoError(t, err)
		assert.NotNil(t, data)
		assert.Empty(t, data)
	})

	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "hp", float64(100)))
	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "mood", "calm"))

	data, err := store.GetData(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"hp": float64(100), "mood": "calm"}, data)
}

func TestDeleteDataValue(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "hp", float64(1)))

	deleted, err := store.DeleteDataValue(ctx, "inst-1", "hp")
	require.NoError(t, err)
	assert.True(t, deleted)

	t.Run("AlreadyGone", func(t *testing.T) {
		deleted, err := store.DeleteDataValue(ctx, "inst-1", "hp")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestClearInstanceData(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "a", float64(1)))
	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "b", float64(2)))

	cleared, err := store.ClearInstanceData(ctx, "inst-1")
	require.NoError(t, err)
	assert.True(t, cleared)

	data, err := store.GetData(ctx, "inst-1")
	require.NoError(t, err)
	assert.Empty(t, data)

	t.Run("AlreadyEmpty", func(t *testing.T) {
		cleared, err := store.ClearInstanceData(ctx, "inst-1")
		require.NoError(t, err)
		assert.False(t, cleared)
	})
}

func TestOverrideInstanceData(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "a", float64(1)))
	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "b", float64(2)))

	data, err := store.OverrideInstanceData(ctx, "inst-1", map[string]any{"c": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": float64(3)}, data, "override drops every key it does not mention")

	t.Run("EmptyMappingClears", func(t *testing.T) {
		data, err := store.OverrideInstanceData(ctx, "inst-1", map[string]any{})
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("EmptyKeyRollsBack", func(t *testing.T) {
		require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "keep", "me"))

		_, err := store.OverrideInstanceData(ctx, "inst-1", map[string]any{"": "bad"})
		assertBadRequest(t, err)

		data, err := store.GetData(ctx, "inst-1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"keep": "me"}, data, "a failed override must leave the bag untouched")
	})
}

func TestMergeInstanceData(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "a", float64(1)))
	require.NoError(t, store.UpsertDataValue(ctx, "inst-1", "b", float64(2)))

	data, err := store.MergeInstanceData(ctx, "inst-1", map[string]any{"b": float64(9), "c": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(9), "c": float64(3)}, data)

	t.Run("EmptyMappingIsNoop", func(t *testing.T) {
		data, err := store.MergeInstanceData(ctx, "inst-1", map[string]any{})
		require.NoError(t, err)
		assert.Len(t, data, 3)
	})
}

func TestRemoveDataValues(t *testing.T) {
	store := openStoreWithInstance(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, store.UpsertDataValue(ctx, "inst-1", key, float64(1)))
	}

	removed, err := store.RemoveDataValues(ctx, "inst-1", []string{"a", "b", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed, "only keys that existed are counted")

	data, err := store.GetData(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": float64(1)}, data)

	t.Run("NoKeys", func(t *testing.T) {
		removed, err := store.RemoveDataValues(ctx, "inst-1", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)
	})
}
