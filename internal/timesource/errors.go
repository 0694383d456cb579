package timesource

import "errors"

var (
	ErrAlreadyInitialized = errors.New("time source already initialized")
	ErrNotStarted         = errors.New("time source not started")
	ErrQueueFull          = errors.New("time source queue full")
	ErrNoServers          = errors.New("no ntp servers configured")
)
