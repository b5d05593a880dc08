package core

import "github.com/google/uuid"

// Identifier tags engine objects (meshes, materials, nodes) in diagnostics.
type Identifier = uuid.UUID

func NewIdentifier() Identifier {
	return uuid.New()
}

// ShortID returns the first 8 hex characters of id, enough for log lines.
func ShortID(id Identifier) string {
	return id.String()[:8]
}
