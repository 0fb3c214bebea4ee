package storage

import "errors"

var (
	ErrNotFound      = errors.New("storage: record not found")
	ErrAlreadyExists = errors.New("storage: record already exists")
	ErrMigration     = errors.New("storage: migration failed")
)
