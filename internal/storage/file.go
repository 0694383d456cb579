package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lampdial/internal/eventbus"
	logx "lampdial/pkg/logx"
)

// fileStore keeps two files next to cfg.Path:
//   - <prefix>.journal.jsonl  (append-only JSON Lines)
//   - <prefix>.display.json   (snapshot, replaced atomically)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	journalPath string
	journal     *os.File
	displayPath string
}

type displayRecord struct {
	Shown time.Time `json:"shown"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	journalPath := prefix + ".journal.jsonl"
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		log:         log,
		journalPath: journalPath,
		journal:     jf,
		displayPath: prefix + ".display.json",
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) SaveDisplay(_ context.Context, shown time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	tmp := s.displayPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(displayRecord{Shown: shown}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.displayPath)
}

func (s *fileStore) LoadDisplay(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.displayPath)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	defer f.Close()
	var r displayRecord
	if err := json.NewDecoder(f).Decode(&r); err != nil {
		return time.Time{}, false, err
	}
	return r.Shown, !r.Shown.IsZero(), nil
}

func (s *fileStore) AppendEvent(_ context.Context, e eventbus.Event) error {
	je, err := journalEntry(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.journal).Encode(je)
}

// Events returns up to limit most recent entries, oldest first.
func (s *fileStore) Events(_ context.Context, limit int) ([]JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// PruneEvents rewrites the journal without entries older than before.
func (s *fileStore) PruneEvents(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	all, err := s.readLocked()
	if err != nil {
		return 0, err
	}
	keep := all[:0]
	for _, je := range all {
		if !je.At.Before(before) {
			keep = append(keep, je)
		}
	}
	pruned := len(all) - len(keep)
	if pruned == 0 {
		return 0, nil
	}

	tmp := s.journalPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(f)
	for _, je := range keep {
		if err := enc.Encode(je); err != nil {
			_ = f.Close()
			return 0, err
		}
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	_ = s.journal.Close()
	if err := os.Rename(tmp, s.journalPath); err != nil {
		return 0, err
	}
	s.journal, err = os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

func (s *fileStore) readLocked() ([]JournalEntry, error) {
	f, err := os.Open(s.journalPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []JournalEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var je JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &je); err != nil || je.Type == "" {
			s.log.Debug("skipping bad journal line", logx.Err(err))
			continue
		}
		out = append(out, je)
	}
	return out, sc.Err()
}
