// Package crossext provides the read-only view one extension uses to look
// into another extension's store.
package crossext

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/asterworks/valuetracker/pkg/models"
	"github.com/asterworks/valuetracker/pkg/registry"
	"github.com/asterworks/valuetracker/pkg/storage"
)

// Reader exposes only read operations over the registry. Every method
// resolves the target extension itself and falls back to a neutral empty
// value when the id does not validate or no store is registered, so a lookup
// into an unknown extension never errors.
type Reader struct {
	registry *registry.Registry
	logger   ectologger.Logger
}

func NewReader(reg *registry.Registry, logger ectologger.Logger) *Reader {
	return &Reader{
		registry: reg,
		logger:   logger,
	}
}

// HasStore reports whether a store is registered for the extension
func (r *Reader) HasStore(extensionID string) bool {
	store, err := r.registry.Get(extensionID)
	return err == nil && store != nil
}

// GetFullCharacter returns the character with instances and data bags, or nil
// when the extension or character is unknown.
func (r *Reader) GetFullCharacter(ctx context.Context, extensionID, characterID string) (*models.FullCharacter, error) {
	store := r.store(ctx, extensionID)
	if store == nil {
		return nil, nil
	}
	return store.GetFullCharacter(ctx, characterID)
}

// GetFullInstance returns the instance with its data bag, or nil when the
// extension or instance is unknown.
func (r *Reader) GetFullInstance(ctx context.Context, extensionID, instanceID string) (*models.FullInstance, error) {
	store := r.store(ctx, extensionID)
	if store == nil {
		return nil, nil
	}
	return store.GetFullInstance(ctx, instanceID)
}

// GetData returns an instance's data bag, or an empty mapping when the
// extension is unknown.
func (r *Reader) GetData(ctx context.Context, extensionID, instanceID string) (map[string]any, error) {
	store := r.store(ctx, extensionID)
	if store == nil {
		return map[string]any{}, nil
	}
	return store.GetData(ctx, instanceID)
}

// GetDataValue returns one decoded value; the boolean reports whether the
// entry exists. An unknown extension reads as a missing entry.
func (r *Reader) GetDataValue(ctx context.Context, extensionID, instanceID, key string) (any, bool, error) {
	store := r.store(ctx, extensionID)
	if store == nil {
		return nil, false, nil
	}
	return store.GetDataValue(ctx, instanceID, key)
}

// GetAllCharacters lists the extension's characters, or an empty list when
// the extension is unknown.
func (r *Reader) GetAllCharacters(ctx context.Context, extensionID string) ([]*models.Character, error) {
	store := r.store(ctx, extensionID)
	if store == nil {
		return []*models.Character{}, nil
	}
	return store.GetAllCharacters(ctx)
}

// GetInstancesByCharacter lists a character's instances, or an empty list
// when the extension is unknown.
func (r *Reader) GetInstancesByCharacter(ctx context.Context, extensionID, characterID string) ([]*models.Instance, error) {
	store := r.store(ctx, extensionID)
	if store == nil {
		return []*models.Instance{}, nil
	}
	return store.GetInstancesByCharacter(ctx, characterID)
}

func (r *Reader) store(ctx context.Context, extensionID string) *storage.Store {
	store, err := r.registry.Get(extensionID)
	if err != nil || store == nil {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"extension_id": extensionID,
		}).Debug("No store registered for extension")
		return nil
	}
	return store
}
