package model

import (
	"encoding/json"
	"time"
)

const (
	DefaultReadLimit = 1000
	MaxHistoryLimit  = 1000
)

// RegisterTableRequest registers a Delta table in the catalog
type RegisterTableRequest struct {
	Name        string            `json:"name" validate:"required,max=255,excludesall=/?#"`
	Location    string            `json:"location" validate:"required,max=1024"`
	Description string            `json:"description" validate:"max=1024"`
	Properties  map[string]string `json:"properties"`
}

// ResolveRequest selects a table version. Exactly one of Table and
// Location names the table.
type ResolveRequest struct {
	Table      string          `json:"table" validate:"required_without=Location,excluded_with=Location"`
	Location   string          `json:"location" validate:"required_without=Table"`
	Version    *int64          `json:"version" validate:"omitempty,min=0,excluded_with=Timestamp"`
	Checkpoint *int64          `json:"checkpoint" validate:"omitempty,min=0"`
	Timestamp  *time.Time      `json:"timestamp"`
	Filter     json.RawMessage `json:"filter"`
	Columns    []string        `json:"columns" validate:"omitempty,dive,required"`
}

// ReadRequest resolves a table version and returns its rows
type ReadRequest struct {
	ResolveRequest
	Limit int `json:"limit" validate:"omitempty,min=1"`
}

// ApplyDefaults applies default values to the ReadRequest
func (r *ReadRequest) ApplyDefaults(maxRows int) {
	if r.Limit <= 0 {
		r.Limit = DefaultReadLimit
	}
	if maxRows > 0 && r.Limit > maxRows {
		r.Limit = maxRows
	}
}

// ColumnInfo represents column information in the result set
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ReadResponse represents the rows of a resolved table version
type ReadResponse struct {
	Columns  []ColumnInfo    `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	Metadata ReadMetadata    `json:"metadata"`
}

// ReadMetadata contains metadata about the read
type ReadMetadata struct {
	Location        string    `json:"location"`
	Version         int64     `json:"version"`
	Checkpoint      int64     `json:"checkpoint"`
	Partitions      int       `json:"partitions"`
	RowCount        int       `json:"rowCount"`
	Truncated       bool      `json:"truncated"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	ExecutedAt      time.Time `json:"executedAt"`
}
