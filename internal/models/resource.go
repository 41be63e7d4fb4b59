package models

import (
	"time"

	"github.com/google/uuid"
)

// Resource is a catalog entry. Only MinStock changes after creation.
type Resource struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Category  string    `json:"category" db:"category"` // Food, Water, Medicine, Shelter, Clothing
	Unit      string    `json:"unit" db:"unit"`
	MinStock  int       `json:"min_stock" db:"min_stock"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
