package repository

import "errors"

// Common repository errors
var (
	ErrTableNotFound      = errors.New("table not found")
	ErrTableAlreadyExists = errors.New("table already exists")
)
