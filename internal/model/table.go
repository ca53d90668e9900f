package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Table is a catalog entry naming a Delta table location
type Table struct {
	ID          string          `gorm:"type:char(36);primaryKey" json:"id"`
	Name        string          `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Location    string          `gorm:"size:1024;not null" json:"location"`
	Description string          `gorm:"size:1024" json:"description,omitempty"`
	Properties  TableProperties `gorm:"type:json" json:"properties,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableProperties holds free-form catalog properties such as an owner
type TableProperties map[string]string

// Value implements driver.Valuer interface for GORM
func (p TableProperties) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner interface for GORM
func (p *TableProperties) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported table properties type %T", value)
	}

	return json.Unmarshal(bytes, p)
}

// TableName returns the table name for the Table model
func (Table) TableName() string {
	return "delta_tables"
}

// BeforeCreate generates a new UUID if ID is empty
func (t *Table) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
