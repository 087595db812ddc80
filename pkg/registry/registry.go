// Package registry holds the process-wide mapping from validated extension
// identifier to its open store.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/asterworks/valuetracker/pkg/extid"
	"github.com/asterworks/valuetracker/pkg/metrics"
	"github.com/asterworks/valuetracker/pkg/storage"
	"github.com/asterworks/valuetracker/pkg/tracing"
)

// Registry maps validated extension ids to open stores. Register, Deregister
// and CloseAll are the only mutators and exclude each other.
type Registry struct {
	baseDir string
	logger  ectologger.Logger

	mu     sync.Mutex
	stores map[string]*storage.Store
}

func New(baseDir string, logger ectologger.Logger) *Registry {
	return &Registry{
		baseDir: baseDir,
		logger:  logger,
		stores:  make(map[string]*storage.Store),
	}
}

// Register opens a fresh store for the extension and registers it. A store
// already held under the same validated id is closed first.
func (r *Registry) Register(ctx context.Context, extensionID string) (*storage.Store, error) {
	return r.RegisterWithPath(ctx, extensionID, "")
}

// RegisterWithPath is Register with a caller-supplied database path. The path
// is never honored; the store logs the refusal on open.
func (r *Registry) RegisterWithPath(ctx context.Context, extensionID, requestedPath string) (*storage.Store, error) {
	ctx, span := tracing.StartSpan(ctx, "Registry.Register")
	defer span.End()

	validated, err := extid.Validate(extensionID)
	if err != nil {
		return nil, err
	}

	r.closeExisting(ctx, validated)

	store, err := storage.Open(ctx, validated, storage.Options{
		BaseDir:       r.baseDir,
		RequestedPath: requestedPath,
		Logger:        r.logger,
	})
	if err != nil {
		return nil, err
	}

	r.put(validated, store)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": validated,
	}).Info("Registered extension")

	return store, nil
}

// RegisterStore registers a pre-constructed store under the extension id. A
// store already held under the same validated id is closed first.
func (r *Registry) RegisterStore(ctx context.Context, extensionID string, store *storage.Store) error {
	ctx, span := tracing.StartSpan(ctx, "Registry.RegisterStore")
	defer span.End()

	validated, err := extid.Validate(extensionID)
	if err != nil {
		return err
	}

	r.closeExisting(ctx, validated)
	r.put(validated, store)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": validated,
	}).Info("Registered extension")

	return nil
}

// Deregister removes the store from the map without closing it; the caller
// may still hold a reference. CloseAll is the backstop for stores that leak
// this way. Returns false when no store was registered under the id.
func (r *Registry) Deregister(ctx context.Context, extensionID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "Registry.Deregister")
	defer span.End()

	validated, err := extid.Validate(extensionID)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	_, ok := r.stores[validated]
	delete(r.stores, validated)
	metrics.StoresOpen.Set(float64(len(r.stores)))
	r.mu.Unlock()

	if ok {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"extension_id": validated,
		}).Info("Deregistered extension")
	}

	return ok, nil
}

// Get returns the store registered for the extension id, or nil when none is.
func (r *Registry) Get(extensionID string) (*storage.Store, error) {
	validated, err := extid.Validate(extensionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores[validated], nil
}

// Size returns the number of registered stores.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// ExtensionIDs returns the validated ids of every registered store, sorted.
func (r *Registry) ExtensionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every registered store, logging and continuing on per-store
// failures so one broken file cannot block teardown of the rest, then resets
// the map. Safe to call more than once.
func (r *Registry) CloseAll(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Registry.CloseAll")
	defer span.End()

	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*storage.Store)
	metrics.StoresOpen.Set(0)
	r.mu.Unlock()

	for id, store := range stores {
		if err := store.Close(ctx); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"extension_id": id,
			}).Error("Failed to close store during teardown")
		}
	}

	if len(stores) > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"count": len(stores),
		}).Info("Closed all extension stores")
	}
}

// closeExisting closes whatever store currently holds the id so its file
// handle is released before a replacement opens the same file.
func (r *Registry) closeExisting(ctx context.Context, validated string) {
	r.mu.Lock()
	old, ok := r.stores[validated]
	delete(r.stores, validated)
	metrics.StoresOpen.Set(float64(len(r.stores)))
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := old.Close(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": validated,
		}).Error("Failed to close replaced store")
	}
}

// put stores the entry and refreshes the gauge.
func (r *Registry) put(validated string, store *storage.Store) {
	r.mu.Lock()
	r.stores[validated] = store
	metrics.StoresOpen.Set(float64(len(r.stores)))
	r.mu.Unlock()
}
