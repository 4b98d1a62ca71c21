package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrOpenStore = errors.New("open store")
	ErrWriteRun  = errors.New("write run")
)
