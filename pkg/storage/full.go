package storage

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/asterworks/valuetracker/pkg/models"
	"github.com/asterworks/valuetracker/pkg/tracing"
)

// GetFullInstance returns the instance with its decoded data bag, or nil when
// the instance does not exist. Both reads run in one transaction so the bag
// always matches the row.
func (s *Store) GetFullInstance(ctx context.Context, id string) (*models.FullInstance, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.GetFullInstance")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	instance, err := getInstance(ctx, tx, id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           id,
		}).Error("Failed to get full instance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get full instance")
	}
	if instance == nil {
		return nil, nil
	}

	data, err := getDataMap(ctx, tx, id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           id,
		}).Error("Failed to get full instance data")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get full instance")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return &models.FullInstance{
		Instance: *instance,
		Data:     data,
	}, nil
}

// GetFullCharacter returns the character with every owned instance and its
// data bag, or nil when the character does not exist. All reads run in one
// transaction so the result is a consistent snapshot.
func (s *Store) GetFullCharacter(ctx context.Context, id string) (*models.FullCharacter, error) {
	ctx, span := tracing.StartSpan(ctx, "Store.GetFullCharacter")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errDatabaseClosed
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	character, err := getCharacter(ctx, tx, id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           id,
		}).Error("Failed to get full character")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get full character")
	}
	if character == nil {
		return nil, nil
	}

	instances, err := listInstancesByCharacter(ctx, tx, id)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"extension_id": s.extensionID,
			"id":           id,
		}).Error("Failed to list full character instances")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get full character")
	}

	full := &models.FullCharacter{
		Character: *character,
		Instances: make([]models.FullInstance, 0, len(instances)),
	}

	for _, instance := range instances {
		data, err := getDataMap(ctx, tx, instance.ID)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"extension_id": s.extensionID,
				"id":           id,
				"instance_id":  instance.ID,
			}).Error("Failed to get full character data")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get full character")
		}

		full.Instances = append(full.Instances, models.FullInstance{
			Instance: *instance,
			Data:     data,
		})
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, err
	}

	return full, nil
}
