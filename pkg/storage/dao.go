package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/asterworks/valuetracker/pkg/database"
	"github.com/asterworks/valuetracker/pkg/models"
)

const (
	charactersTable = "characters"
	instancesTable  = "instances"
	dataTable       = "data"
)

// queryer is the subset of database.DB and database.Tx the row helpers need,
// so the same helper serves plain reads and transactional ones.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// CharacterRow represents the database row for a character
type CharacterRow struct {
	ID        sql.NullString `db:"id"`
	Name      sql.NullString `db:"name"`
	CreatedAt sql.NullString `db:"created_at"`
	UpdatedAt sql.NullString `db:"updated_at"`
}

var characterStruct = database.NewStruct(new(CharacterRow))

// InstanceRow represents the database row for an instance
type InstanceRow struct {
	ID          sql.NullString `db:"id"`
	CharacterID sql.NullString `db:"character_id"`
	Name        sql.NullString `db:"name"`
	CreatedAt   sql.NullString `db:"created_at"`
	UpdatedAt   sql.NullString `db:"updated_at"`
}

var instanceStruct = database.NewStruct(new(InstanceRow))

// DataRow represents the database row for one data bag entry
type DataRow struct {
	InstanceID sql.NullString `db:"instance_id"`
	Key        sql.NullString `db:"key"`
	Value      sql.NullString `db:"value"`
	CreatedAt  sql.NullString `db:"created_at"`
	UpdatedAt  sql.NullString `db:"updated_at"`
}

var dataStruct = database.NewStruct(new(DataRow))

// FromCharacterUpsert converts an upsert patch to a database row
func FromCharacterUpsert(upsert models.CharacterUpsert, now time.Time) *CharacterRow {
	row := &CharacterRow{
		ID:        sql.NullString{String: upsert.ID, Valid: upsert.ID != ""},
		CreatedAt: sql.NullString{String: formatTime(now), Valid: true},
		UpdatedAt: sql.NullString{String: formatTime(now), Valid: true},
	}
	if upsert.Name != nil {
		row.Name = sql.NullString{String: *upsert.Name, Valid: true}
	}
	return row
}

// ToCharacter converts a database row to a domain model
func ToCharacter(row *CharacterRow) *models.Character {
	character := &models.Character{
		ID:        row.ID.String,
		CreatedAt: parseTime(row.CreatedAt.String),
		UpdatedAt: parseTime(row.UpdatedAt.String),
	}
	if row.Name.Valid {
		name := row.Name.String
		character.Name = &name
	}
	return character
}

// ToCharacters converts a slice of database rows to domain models
func ToCharacters(rows []CharacterRow) []*models.Character {
	characters := make([]*models.Character, len(rows))
	for i, row := range rows {
		characters[i] = ToCharacter(&row)
	}
	return characters
}

// FromInstanceUpsert converts an upsert patch to a database row
func FromInstanceUpsert(upsert models.InstanceUpsert, now time.Time) *InstanceRow {
	row := &InstanceRow{
		ID:          sql.NullString{String: upsert.ID, Valid: upsert.ID != ""},
		CharacterID: sql.NullString{String: upsert.CharacterID, Valid: upsert.CharacterID != ""},
		CreatedAt:   sql.NullString{String: formatTime(now), Valid: true},
		UpdatedAt:   sql.NullString{String: formatTime(now), Valid: true},
	}
	if upsert.Name != nil {
		row.Name = sql.NullString{String: *upsert.Name, Valid: true}
	}
	return row
}

// ToInstance converts a database row to a domain model
func ToInstance(row *InstanceRow) *models.Instance {
	instance := &models.Instance{
		ID:          row.ID.String,
		CharacterID: row.CharacterID.String,
		CreatedAt:   parseTime(row.CreatedAt.String),
		UpdatedAt:   parseTime(row.UpdatedAt.String),
	}
	if row.Name.Valid {
		name := row.Name.String
		instance.Name = &name
	}
	return instance
}

// ToInstances converts a slice of database rows to domain models
func ToInstances(rows []InstanceRow) []*models.Instance {
	instances := make([]*models.Instance, len(rows))
	for i, row := range rows {
		instances[i] = ToInstance(&row)
	}
	return instances
}

// NewDataRow builds the row for one data bag entry with an already encoded value
func NewDataRow(instanceID, key, encoded string, now time.Time) *DataRow {
	return &DataRow{
		InstanceID: sql.NullString{String: instanceID, Valid: true},
		Key:        sql.NullString{String: key, Valid: true},
		Value:      sql.NullString{String: encoded, Valid: true},
		CreatedAt:  sql.NullString{String: formatTime(now), Valid: true},
		UpdatedAt:  sql.NullString{String: formatTime(now), Valid: true},
	}
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}

// timeLayout is RFC 3339 with a fixed-width fraction. RFC3339Nano strips
// trailing zeros, which would break the lexicographic ORDER BY on the
// created_at column.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamps are stored as RFC 3339 text so the files stay readable with any
// SQLite tooling.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
