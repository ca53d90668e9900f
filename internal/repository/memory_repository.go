package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"deltaframe/internal/model"
)

type memoryTableRepository struct {
	mu     sync.RWMutex
	tables map[string]*model.Table
}

// NewMemoryTableRepository creates a TableRepository kept in process memory
func NewMemoryTableRepository() TableRepository {
	return &memoryTableRepository{tables: make(map[string]*model.Table)}
}

func (r *memoryTableRepository) Create(ctx context.Context, table *model.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[table.Name]; exists {
		return ErrTableAlreadyExists
	}
	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	table.CreatedAt = now
	table.UpdatedAt = now

	stored := *table
	r.tables[table.Name] = &stored
	return nil
}

func (r *memoryTableRepository) GetByName(ctx context.Context, name string) (*model.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	table, ok := r.tables[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	found := *table
	return &found, nil
}

func (r *memoryTableRepository) List(ctx context.Context, limit, offset int) ([]*model.Table, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	tables := make([]*model.Table, 0, len(r.tables))
	for _, table := range r.tables {
		copied := *table
		tables = append(tables, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	total := int64(len(tables))

	if offset >= len(tables) {
		return []*model.Table{}, total, nil
	}
	tables = tables[offset:]
	if limit > 0 && limit < len(tables) {
		tables = tables[:limit]
	}
	return tables, total, nil
}

func (r *memoryTableRepository) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[name]; !ok {
		return ErrTableNotFound
	}
	delete(r.tables, name)
	return nil
}
