package storage

import "errors"

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrInvalidData    = errors.New("invalid data")
	ErrStorageInit    = errors.New("storage initialization failed")
	ErrFileOperation  = errors.New("file operation failed")
)
