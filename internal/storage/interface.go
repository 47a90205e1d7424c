// Package storage serves the static lore used to build world-aware system
// prompts. The content is read-only and shared by every request.
package storage

type EntityKind string

const (
	KindCharacter EntityKind = "characters"
	KindLocation  EntityKind = "locations"
	KindItem      EntityKind = "items"
)

// Entity is one piece of lore. Names are the lower-case phrases that, when
// they appear in the conversation, pull the entity into the prompt.
type Entity struct {
	ID      string     `json:"id"`
	Kind    EntityKind `json:"kind"`
	Title   string     `json:"title,omitempty"`
	Names   []string   `json:"names"`
	Content string     `json:"content,omitempty"`
}

type Storage interface {
	// Overview returns the world description.
	Overview() (string, error)
	// Entities lists the index of known entities without their content.
	Entities() ([]Entity, error)
	// GetEntity returns an entity with its content loaded.
	GetEntity(kind EntityKind, id string) (*Entity, error)

	Init() error
	Close() error
}
