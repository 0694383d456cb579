package board

import "errors"

var (
	ErrAlreadyInitialized = errors.New("board already initialized")
	ErrNotStarted         = errors.New("board receiver not started")
	ErrQueueFull          = errors.New("board receiver queue full")
	ErrInvalidMessage     = errors.New("invalid board message")
)
