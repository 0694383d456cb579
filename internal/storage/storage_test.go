package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lampdial/internal/eventbus"
	logx "lampdial/pkg/logx"
)

func openBoth(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "file", "lampdial.db")},
		{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "lampdial.db"), BusyTimeout: time.Second},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if st != nil || err != nil {
			t.Fatalf("Open(%q) = %v, %v; want disabled", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path should fail")
	}
}

func TestDisplayRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openBoth(t) {
		if _, ok, err := st.LoadDisplay(ctx); ok || err != nil {
			t.Fatalf("%s: empty LoadDisplay = %v, %v", name, ok, err)
		}
		shown := time.Date(2024, 3, 9, 14, 5, 0, 0, time.FixedZone("GMT-3", -3*3600))
		for _, v := range []time.Time{shown.Add(-time.Minute), shown} {
			if err := st.SaveDisplay(ctx, v); err != nil {
				t.Fatalf("%s: SaveDisplay: %v", name, err)
			}
		}
		got, ok, err := st.LoadDisplay(ctx)
		if err != nil || !ok || !got.Equal(shown) {
			t.Fatalf("%s: LoadDisplay = %s, %v, %v; want %s", name, got, ok, err, shown)
		}
	}
}

func TestJournalAppendListPrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, st := range openBoth(t) {
		for i := 0; i < 5; i++ {
			e := eventbus.Event{Type: eventbus.TimeChanged, Time: base.Add(time.Duration(i) * time.Hour), Data: map[string]int{"i": i}}
			if err := st.AppendEvent(ctx, e); err != nil {
				t.Fatalf("%s: AppendEvent: %v", name, err)
			}
		}
		if err := st.AppendEvent(ctx, eventbus.Event{Type: eventbus.TimeSyncFailed, Time: base.Add(5 * time.Hour)}); err != nil {
			t.Fatalf("%s: AppendEvent without data: %v", name, err)
		}

		last, err := st.Events(ctx, 2)
		if err != nil {
			t.Fatalf("%s: Events: %v", name, err)
		}
		if len(last) != 2 || last[0].Data != `{"i":4}` || last[1].Type != eventbus.TimeSyncFailed || last[1].Data != "" {
			t.Fatalf("%s: Events(2) = %+v", name, last)
		}

		n, err := st.PruneEvents(ctx, base.Add(3*time.Hour))
		if err != nil || n != 3 {
			t.Fatalf("%s: PruneEvents = %d, %v; want 3", name, n, err)
		}
		all, err := st.Events(ctx, 0)
		if err != nil || len(all) != 3 || !all[0].At.Equal(base.Add(3*time.Hour)) {
			t.Fatalf("%s: after prune = %+v, %v", name, all, err)
		}

		// Appends keep working after the journal was rewritten.
		if err := st.AppendEvent(ctx, eventbus.Event{Type: eventbus.TaskStarted, Time: base.Add(6 * time.Hour)}); err != nil {
			t.Fatalf("%s: append after prune: %v", name, err)
		}
		if all, _ := st.Events(ctx, 0); len(all) != 4 {
			t.Fatalf("%s: %d entries after append, want 4", name, len(all))
		}
	}
}

func TestFileJournalSkipsCorruptLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "d.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	ctx := context.Background()
	if err := st.AppendEvent(ctx, eventbus.Event{Type: "a", Time: time.Now()}); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "d.journal.jsonl"), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()
	if err := st.AppendEvent(ctx, eventbus.Event{Type: "b", Time: time.Now()}); err != nil {
		t.Fatal(err)
	}
	all, err := st.Events(ctx, 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("Events = %+v, %v", all, err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.AppendEvent(ctx, eventbus.Event{Type: "c"}); err != ErrClosed {
		t.Fatalf("append after Close = %v", err)
	}
}
