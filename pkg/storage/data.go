package storage

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/asterworks/valuetracker/pkg/codec"
	"github.com/asterworks/valuetracker/pkg/database"
	"github.com/asterworks/valuetracker/pkg/metrics"
	"github.com/asterworks/valuetracker/pkg/tracing"
)

// UpsertDataValue writes one key of an instance's data bag. The value is
// encoded before it is stored; an existing entry keeps its created_at.
func (s *Store) UpsertDataValue(ctx context.Context, instanceID, key string, value any) (err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.UpsertDataValue")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("upsert_data", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errDatabaseClosed
	}

	if instanceID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "instance id is required")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"instance_id":  instanceID,
		"key":          key,
	}).Debug("Upserting data value")

	err = upsertDataRow(ctx, s.db, instanceID, key, value, Now())
	if err != nil {
		if httperror.GetStatusCode(err) == http.StatusBadRequest {
			return err
		}
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"instance_id":  instanceID,
			"key":          key,
		}).Error("Failed to upsert data value")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert data value")
	}

	return nil
}

// GetData returns the whole data bag of an instance as a decoded mapping.
// An unknown instance yields an empty mapping.
func (s *Store) GetData(ctx context.Context, instanceID string) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.GetData")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	data, err := getDataMap(ctx, s.db, instanceID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"instance_id":  instanceID,
		}).Error("Failed to get data")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get data")
	}

	return data, nil
}

// GetDataValue returns the decoded value for one key. The boolean reports
// whether the entry exists, so a stored null is distinguishable from a
// missing key.
func (s *Store) GetDataValue(ctx context.Context, instanceID, key string) (any, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.GetDataValue")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, errDatabaseClosed
	}

	sb := dataStruct.SelectFrom(dataTable)
	sb.Where(
		sb.Equal("instance_id", instanceID),
		sb.Equal("key", key),
	)

	query, args := sb.Build()

	var row DataRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"instance_id":  instanceID,
			"key":          key,
		}).Error("Failed to get data value")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get data value")
	}

	return codec.Decode(row.Value.String), true, nil
}

// DeleteDataValue removes one key from the data bag. Returns false when the
// entry did not exist.
func (s *Store) DeleteDataValue(ctx context.Context, instanceID, key string) (deleted bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.DeleteDataValue")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("delete_data_value", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errDatabaseClosed
	}

	dd := dataStruct.DeleteFrom(dataTable)
	dd.Where(
		dd.Equal("instance_id", instanceID),
		dd.Equal("key", key),
	)

	query, args := dd.Build()

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"instance_id":  instanceID,
		"key":          key,
	}).Debug("Deleting data value")

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete data value")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete data value")
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// ClearInstanceData removes every entry of an instance's data bag. Returns
// false when the bag was already empty.
func (s *Store) ClearInstanceData(ctx context.Context, instanceID string) (cleared bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.ClearInstanceData")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("clear_instance_data", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, errDatabaseClosed
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"instance_id":  instanceID,
	}).Debug("Clearing instance data")

	result, err := clearData(ctx, s.db, instanceID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to clear instance data")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear instance data")
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected > 0, nil
}

// OverrideInstanceData replaces the whole data bag with the provided mapping
// in one transaction. An empty mapping just clears the bag. Returns the
// resulting bag.
func (s *Store) OverrideInstanceData(ctx context.Context, instanceID string, values map[string]any) (data map[string]any, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.OverrideInstanceData")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("override_instance_data", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	if instanceID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "instance id is required")
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"instance_id":  instanceID,
		"keys":         len(values),
	}).Debug("Overriding instance data")

	_, err = clearData(ctx, tx, instanceID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to clear instance data")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to override instance data")
	}

	err = writeDataValues(ctx, tx, instanceID, values)
	if err != nil {
		if httperror.GetStatusCode(err) == http.StatusBadRequest {
			return nil, err
		}
		s.logger.WithContext(ctx).WithError(err).Error("Failed to write instance data")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to override instance data")
	}

	data, err = getDataMap(ctx, tx, instanceID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read back instance data")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to override instance data")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// MergeInstanceData upserts every key of the provided mapping in one
// transaction and keeps all other entries. An empty mapping is a no-op.
// Returns the resulting bag.
func (s *Store) MergeInstanceData(ctx context.Context, instanceID string, values map[string]any) (data map[string]any, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.MergeInstanceData")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("merge_instance_data", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	if instanceID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "instance id is required")
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"instance_id":  instanceID,
		"keys":         len(values),
	}).Debug("Merging instance data")

	err = writeDataValues(ctx, tx, instanceID, values)
	if err != nil {
		if httperror.GetStatusCode(err) == http.StatusBadRequest {
			return nil, err
		}
		s.logger.WithContext(ctx).WithError(err).Error("Failed to write instance data")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge instance data")
	}

	data, err = getDataMap(ctx, tx, instanceID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read back instance data")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge instance data")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// RemoveDataValues deletes the listed keys from the data bag and returns how
// many entries were actually removed. Keys that are not present count as zero.
func (s *Store) RemoveDataValues(ctx context.Context, instanceID string, keys []string) (removed int64, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.RemoveDataValues")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("remove_data_values", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errDatabaseClosed
	}

	if instanceID == "" || len(keys) == 0 {
		return 0, nil
	}

	keyArgs := make([]any, len(keys))
	for i, key := range keys {
		keyArgs[i] = key
	}

	dd := dataStruct.DeleteFrom(dataTable)
	dd.Where(
		dd.Equal("instance_id", instanceID),
		dd.In("key", keyArgs...),
	)

	query, args := dd.Build()

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"instance_id":  instanceID,
		"keys":         len(keys),
	}).Debug("Removing data values")

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to remove data values")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to remove data values")
	}

	removed, _ = result.RowsAffected()
	return removed, nil
}

func upsertDataRow(ctx context.Context, q queryer, instanceID, key string, value any, now time.Time) error {
	if key == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "data key is required")
	}

	encoded, err := codec.Encode(value)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "value for key %q is not serializable", key)
	}

	row := NewDataRow(instanceID, key, encoded, now)

	ib := dataStruct.InsertInto(dataTable, row)
	ub := ib.OnConflict("instance_id", "key")
	ub.Set(
		ub.Assign("value", database.Excluded("value")),
		ub.Assign("updated_at", formatTime(now)),
	)

	query, args := ib.Build()

	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func writeDataValues(ctx context.Context, q queryer, instanceID string, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := Now()
	for _, key := range keys {
		if err := upsertDataRow(ctx, q, instanceID, key, values[key], now); err != nil {
			return err
		}
	}

	return nil
}

func clearData(ctx context.Context, q queryer, instanceID string) (sql.Result, error) {
	dd := dataStruct.DeleteFrom(dataTable)
	dd.Where(dd.Equal("instance_id", instanceID))

	query, args := dd.Build()

	return q.ExecContext(ctx, query, args...)
}

func getDataMap(ctx context.Context, q queryer, instanceID string) (map[string]any, error) {
	sb := dataStruct.SelectFrom(dataTable)
	sb.Where(sb.Equal("instance_id", instanceID))

	query, args := sb.Build()

	var rows []DataRow
	err := q.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any, len(rows))
	for _, row := range rows {
		data[row.Key.String] = codec.Decode(row.Value.String)
	}

	return data, nil
}
