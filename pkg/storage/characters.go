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

// UpsertCharacter inserts the character or updates it in place. A nil name
// keeps the stored name on update. Returns the resulting row.
func (s *Store) UpsertCharacter(ctx context.Context, upsert models.CharacterUpsert) (character *models.Character, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.UpsertCharacter")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("upsert_character", time.Since(start).Seconds(), err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	if upsert.ID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "character id is required")
	}

	now := Now()
	row := FromCharacterUpsert(upsert, now)

	ib := characterStruct.InsertInto(charactersTable, row)
	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("name", database.CoalesceExcluded(charactersTable, "name")),
		ub.Assign("updated_at", formatTime(now)),
	)

	query, args := ib.Build()

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"id":           upsert.ID,
	}).Debug("Upserting character")

	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           upsert.ID,
		}).Error("Failed to upsert character")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert character")
	}

	character, err = getCharacter(ctx, tx, upsert.ID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read back character")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert character")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return character, nil
}

// GetCharacter returns the character or nil when it does not exist.
func (s *Store) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.GetCharacter")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	character, err := getCharacter(ctx, s.db, id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           id,
		}).Error("Failed to get character")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get character")
	}

	return character, nil
}

// GetAllCharacters lists every character in the store.
func (s *Store) GetAllCharacters(ctx context.Context) ([]*models.Character, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.GetAllCharacters")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	sb := characterStruct.SelectFrom(charactersTable)
	sb.OrderBy("created_at")

	query, args := sb.Build()

	var rows []CharacterRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
		}).Error("Failed to list characters")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list characters")
	}

	return ToCharacters(rows), nil
}

// DeleteCharacter removes the character together with all of its instances
// and their data bags in one transaction. Returns false without writing
// anything when the character does not exist.
func (s *Store) DeleteCharacter(ctx context.Context, id string) (deleted bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "Store.DeleteCharacter")
	defer span.End()

	start := time.Now()
	defer func() { metrics.ObserveOperation("delete_character", time.Since(start).Seconds(), err) }()

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

	character, err := getCharacter(ctx, tx, id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           id,
		}).Error("Failed to delete character")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete character")
	}
	if character == nil {
		return false, nil
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"extension_id": s.extensionID,
		"id":           id,
	}).Info("Deleting character")

	// Data rows first, then instances, then the character itself.
	dd := database.NewDeleteBuilder()
	dd.DeleteFrom(dataTable)
	dd.Where(fmt.Sprintf("instance_id IN (SELECT id FROM %s WHERE character_id = %s)", instancesTable, dd.Var(id)))

	query, args := dd.Build()
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete character data")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete character")
	}

	di := instanceStruct.DeleteFrom(instancesTable)
	di.Where(di.Equal("character_id", id))

	query, args = di.Build()
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete character instances")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete character")
	}

	dc := characterStruct.DeleteFrom(charactersTable)
	dc.Where(dc.Equal("id", id))

	query, args = dc.Build()
	_, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to delete character")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete character")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return false, err
	}

	return true, nil
}

func getCharacter(ctx context.Context, q queryer, id string) (*models.Character, error) {
	sb := characterStruct.SelectFrom(charactersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var row CharacterRow
	err := q.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ToCharacter(&row), nil
}
