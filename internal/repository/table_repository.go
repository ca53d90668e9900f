package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"deltaframe/internal/model"
)

type tableRepository struct {
	db *gorm.DB
}

// NewTableRepository creates a TableRepository backed by GORM. The
// database should be opened with TranslateError so that unique index
// violations surface as gorm.ErrDuplicatedKey.
func NewTableRepository(db *gorm.DB) TableRepository {
	return &tableRepository{db: db}
}

// AutoMigrate creates or updates the catalog schema
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&model.Table{})
}

func (r *tableRepository) Create(ctx context.Context, table *model.Table) error {
	err := r.db.WithContext(ctx).Create(table).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrTableAlreadyExists
	}
	return err
}

func (r *tableRepository) GetByName(ctx context.Context, name string) (*model.Table, error) {
	var table model.Table
	result := r.db.WithContext(ctx).Where("name = ?", name).First(&table)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, result.Error
	}
	return &table, nil
}

func (r *tableRepository) List(ctx context.Context, limit, offset int) ([]*model.Table, int64, error) {
	var tables []*model.Table
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Table{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Offset(offset).Order("name ASC").Find(&tables)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	return tables, total, nil
}

func (r *tableRepository) Delete(ctx context.Context, name string) error {
	result := r.db.WithContext(ctx).Where("name = ?", name).Delete(&model.Table{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTableNotFound
	}
	return nil
}
