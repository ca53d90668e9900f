package repository

import (
	"context"

	"deltaframe/internal/model"
)

// TableRepository defines the interface for catalog table operations
type TableRepository interface {
	// Create registers a new table; names are unique
	Create(ctx context.Context, table *model.Table) error

	// GetByName retrieves a table by its catalog name
	GetByName(ctx context.Context, name string) (*model.Table, error)

	// List retrieves registered tables ordered by name
	List(ctx context.Context, limit, offset int) ([]*model.Table, int64, error)

	// Delete removes a table from the catalog
	Delete(ctx context.Context, name string) error
}
