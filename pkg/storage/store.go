// Package storage implements the per-extension store: one SQLite file holding
// that extension's characters, instances and data bags.
package storage

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/asterworks/valuetracker/pkg/database"
	"github.com/asterworks/valuetracker/pkg/extid"
	"github.com/asterworks/valuetracker/pkg/metrics"
	"github.com/asterworks/valuetracker/pkg/tracing"
)

// DefaultBaseDir is where the database files live, relative to the working
// directory of the process.
const DefaultBaseDir = "db"

var errDatabaseClosed = httperror.NewHTTPError(http.StatusInternalServerError, "database is closed")

// Options configure Open.
type Options struct {
	// BaseDir is the directory holding the database files. Empty means
	// DefaultBaseDir under the working directory.
	BaseDir string

	// RequestedPath is a caller-supplied database path. It is never honored;
	// the backing file is always derived from the extension id. A non-empty
	// value is logged so the refusal is visible.
	RequestedPath string

	Logger ectologger.Logger
}

// Store owns one extension's database file and every operation against it.
// Operations hold a read lock for their duration so Close cannot release the
// handle under a running statement.
type Store struct {
	extensionID string
	path        string
	db          database.DB
	logger      ectologger.Logger

	mu     sync.RWMutex
	closed bool
}

// Open validates the extension id, ensures the containing directory exists
// and opens or creates the backing file at <BaseDir>/<sanitized id>.db. The
// embedded schema migrations run on every open so a fresh file is usable
// immediately.
func Open(ctx context.Context, extensionID string, opts Options) (*Store, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.Open")
	defer span.End()

	logger := opts.Logger

	validated, err := extid.Validate(extensionID)
	if err != nil {
		metrics.StoreOpensTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	if opts.RequestedPath != "" {
		logger.WithContext(ctx).WithFields(map[string]any{
			"extension_id":   validated,
			"requested_path": opts.RequestedPath,
		}).Warn("Ignoring caller-supplied database path")
	}

	baseDir := opts.BaseDir
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to create database directory")
		metrics.StoreOpensTotal.WithLabelValues("failure").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create database directory")
	}

	path := filepath.Join(baseDir, validated+".db")

	db, err := database.OpenSQLite(path, logger)
	if err != nil {
		logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": validated,
			"path":         path,
		}).Error("Failed to open database file")
		metrics.StoreOpensTotal.WithLabelValues("failure").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to open database file")
	}

	migrations := database.NewMigrationService(logger, migrationsFS, "migrations")
	if err := migrations.Migrate(validated, db); err != nil {
		db.Close()
		metrics.StoreOpensTotal.WithLabelValues("failure").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to apply schema migrations")
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": validated,
		"path":         path,
	}).Info("Opened extension store")

	metrics.StoreOpensTotal.WithLabelValues("success").Inc()

	return &Store{
		extensionID: validated,
		path:        path,
		db:          db,
		logger:      logger,
	}, nil
}

// Close releases the database handle. Operations after Close fail with a
// "database is closed" error. Closing an already closed store is a no-op.
func (s *Store) Close(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "Store.Close")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.db.Close(); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
		}).Error("Failed to close extension store")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to close extension store")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
	}).Info("Closed extension store")

	return nil
}

// IsOpen reports whether the store still holds its database handle.
func (s *Store) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// ExtensionID returns the validated extension identifier the store was opened with.
func (s *Store) ExtensionID() string {
	return s.extensionID
}

// DBPath returns the path of the backing database file.
func (s *Store) DBPath() string {
	return s.path
}

// Ping verifies the backing file is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errDatabaseClosed
	}
	return s.db.PingContext(ctx)
}
