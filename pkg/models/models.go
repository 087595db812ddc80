// Package models holds the domain and wire types for the extension storage core.
package models

import "time"

// Character is the top-level named container an extension stores data under.
type Character struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Instance is a named sub-entity of a Character. Every instance owns a data bag.
type Instance struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"characterId"`
	Name        *string   `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FullInstance is an instance together with its decoded data bag.
type FullInstance struct {
	Instance Instance       `json:"instance"`
	Data     map[string]any `json:"data"`
}

// FullCharacter is a character with every owned instance and its data bag.
type FullCharacter struct {
	Character Character      `json:"character"`
	Instances []FullInstance `json:"instances"`
}

// CharacterUpsert is the patch applied by Store.UpsertCharacter. A nil Name
// keeps the stored name.
type CharacterUpsert struct {
	ID   string
	Name *string
}

// InstanceUpsert is the patch applied by Store.UpsertInstance. A nil Name
// keeps the stored name; CharacterID is required on every call.
type InstanceUpsert struct {
	ID          string
	CharacterID string
	Name        *string
}
