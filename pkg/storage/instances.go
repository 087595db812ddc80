package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/asterworks/valuetracker/pkg/database"
	"github.com/asterworks/valuetracker/pkg/metrics"
	"github.com/asterworks/valuetracker/pkg/models"
	"github.com/asterworks/valuetracker/pkg/tracing"
)

// UpsertInstance inserts the instance or updates it in place. The owning
// character must already exist; a nil name keeps the stored name on update.
// Returns the resulting row.
func (s *Store) UpsertInstance(ctx context.Context, upsert models.InstanceUpsert) (instance *models.Instance, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.UpsertInstance")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("upsert_instance", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	if upsert.ID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "instance id is required")
	}
	if upsert.CharacterID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "character id is required")
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	character, err := getCharacter(ctx, tx, upsert.CharacterID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to check owning character")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert instance")
	}
	if character == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "character %q does not exist", upsert.CharacterID)
	}

	now := Now()
	row := FromInstanceUpsert(upsert, now)

	ib := instanceStruct.InsertInto(instancesTable, row)
	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("character_id", database.CoalesceExcluded(instancesTable, "character_id")),
		ub.Assign("name", database.CoalesceExcluded(instancesTable, "name")),
		ub.Assign("updated_at", formatTime(now)),
	)

	query, args := ib.Build()

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"id":           upsert.ID,
		"character_id": upsert.CharacterID,
	}).Debug("Upserting instance")

	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           upsert.ID,
			"character_id": upsert.CharacterID,
		}).Error("Failed to upsert instance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert instance")
	}

	instance, err = getInstance(ctx, tx, upsert.ID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read back instance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert instance")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// GetInstance returns the instance or nil when it does not exist.
func (s *Store) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.GetInstance")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	instance, err := getInstance(ctx, s.db, id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           id,
		}).Error("Failed to get instance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get instance")
	}

	return instance, nil
}

// GetInstancesByCharacter lists every instance owned by the character.
func (s *Store) GetInstancesByCharacter(ctx context.Context, characterID string) ([]*models.Instance, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.GetInstancesByCharacter")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	instances, err := listInstancesByCharacter(ctx, s.db, characterID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"character_id": characterID,
		}).Error("Failed to list instances")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list instances")
	}

	return instances, nil
}

// DeleteInstance removes the instance and its data bag in one transaction.
// Returns false without writing anything when the instance does not exist.
func (s *Store) DeleteInstance(ctx context.Context, id string) (deleted bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.DeleteInstance")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("delete_instance", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errDatabaseClosed
	}

	if id == "" {
		return false, nil
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	instance, err := getInstance(ctx, tx, id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           id,
		}).Error("Failed to delete instance")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete instance")
	}
	if instance == nil {
		return false, nil
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"id":           id,
	}).Info("Deleting instance")

	dd := dataStruct.DeleteFrom(dataTable)
	dd.Where(dd.Equal("instance_id", id))

	query, args := dd.Build()
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete instance data")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete instance")
	}

	di := instanceStruct.DeleteFrom(instancesTable)
	di.Where(di.Equal("id", id))

	query, args = di.Build()
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete instance")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete instance")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return false, err
	}

	return true, nil
}

// DeleteInstancesByCharacter removes every instance owned by the character
// together with their data bags in one transaction. Returns the number of
// instances removed.
func (s *Store) DeleteInstancesByCharacter(ctx context.Context, characterID string) (deleted int64, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.DeleteInstancesByCharacter")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("delete_instances_by_character", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errDatabaseClosed
	}

	if characterID == "" {
		return 0, nil
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"character_id": characterID,
	}).Info("Deleting instances for character")

	dd := database.NewDeleteBuilder()
	dd.DeleteFrom(dataTable)
	dd.Where(fmt.Sprintf("instance_id IN (SELECT id FROM %s WHERE character_id = %s)", instancesTable, dd.Var(characterID)))

	query, args := dd.Build()
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete instance data")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete instances")
	}

	di := instanceStruct.DeleteFrom(instancesTable)
	di.Where(di.Equal("character_id", characterID))

	query, args = di.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete instances")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete instances")
	}

	deleted, _ = result.RowsAffected()

	err = tx.Commit(ctx)
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

func getInstance(ctx context.Context, q queryer, id string) (*models.Instance, error) {
	sb := instanceStruct.SelectFrom(instancesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var row InstanceRow
	err := q.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ToInstance(&row), nil
}

func listInstancesByCharacter(ctx context.Context, q queryer, characterID string) ([]*models.Instance, error) {
	sb := instanceStruct.SelectFrom(instancesTable)
	sb.Where(sb.Equal("character_id", characterID))
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var rows []InstanceRow
	err := q.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}

	return ToInstances(rows), nil
}
