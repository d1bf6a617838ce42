package models

import "github.com/google/uuid"

// ensureID assigns a random identifier before insert so rows created through
// gorm carry an id on every dialect, not only where the column has a default.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
