package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines journal plus a display snapshot
//   - "sqlite": SQLite database file
//
// An empty Driver or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// JournalEntry is one stored bus event.
type JournalEntry struct {
	At   time.Time `json:"at"`
	Type string    `json:"type"`
	Data string    `json:"data,omitempty"` // JSON
}
