package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"lampdial/internal/eventbus"
	logx "lampdial/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	SaveDisplay(ctx context.Context, shown time.Time) error
	LoadDisplay(ctx context.Context) (shown time.Time, ok bool, err error)
	AppendEvent(ctx context.Context, e eventbus.Event) error
	Events(ctx context.Context, limit int) ([]JournalEntry, error)
	PruneEvents(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func journalEntry(e eventbus.Event) (JournalEntry, error) {
	je := JournalEntry{At: e.Time, Type: e.Type}
	if je.At.IsZero() {
		je.At = time.Now()
	}
	if e.Data != nil {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return JournalEntry{}, err
		}
		je.Data = string(b)
	}
	return je, nil
}
