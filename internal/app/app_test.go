package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"lampdial/internal/config"
	"lampdial/internal/expander"
	"lampdial/internal/storage"
	logx "lampdial/pkg/logx"
)

const testConfig = `
logging:
  level: warn
  console: false
board:
  poll_interval: 20ms
  expander:
    driver: memory
timesource:
  timezone: UTC
  poll_interval: 20ms
  disabled: true
storage:
  driver: file
  path: %DIR%/state.db
`

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "lampdial.yaml")
	body := strings.ReplaceAll(testConfig, "%DIR%", dir)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAppShowsTimeAndPersistsIt(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "time on the dial", func() bool { return a.Board().Stats().Dispatched >= 1 })

	st := a.store
	waitFor(t, "display persisted", func() bool {
		_, ok, _ := st.LoadDisplay(context.Background())
		return ok
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Board().Initialized() {
		t.Fatal("board still initialized after Stop")
	}

	// The journal survives a restart.
	st2, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "state.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()
	events, err := st2.Events(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	var sawTime bool
	for _, e := range events {
		if e.Type == "time.changed" {
			sawTime = true
		}
	}
	if !sawTime {
		t.Fatalf("journal has no time.changed entry: %+v", events)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("board:\n  expander:\n    driver: spi\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil || !strings.Contains(err.Error(), "board.expander.driver") {
		t.Fatalf("New = %v, want expander driver error", err)
	}
}

func TestMapLayout(t *testing.T) {
	t.Parallel()
	got, err := mapLayout([]config.LampConfig{{Group: "a", Mask: 0xF0}, {Group: "B", Mask: 0x0F}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Group != expander.GroupA || got[1].Group != expander.GroupB || got[1].Mask != 0x0F {
		t.Fatalf("layout = %+v", got)
	}
	if l, err := mapLayout(nil); l != nil || err != nil {
		t.Fatalf("empty layout = %v, %v; want board default", l, err)
	}
	if _, err := mapLayout([]config.LampConfig{{Group: "Z", Mask: 1}}); err == nil {
		t.Fatal("bad group should fail")
	}
}

func TestMapTimeSource(t *testing.T) {
	t.Parallel()
	cfg, syncer, err := mapTimeSource(config.TimeSourceConfig{Timezone: "Etc/GMT+3", RetryDelay: "1s", QueryTimeout: "3s"})
	if err != nil {
		t.Fatal(err)
	}
	if syncer == nil {
		t.Fatal("NTP syncer expected when not disabled")
	}
	if cfg.Location.String() != "Etc/GMT+3" || cfg.RetryDelay != time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}

	_, syncer, err = mapTimeSource(config.TimeSourceConfig{Disabled: true})
	if err != nil || syncer != nil {
		t.Fatalf("disabled = %v, %v; want no syncer", syncer, err)
	}
	if _, _, err := mapTimeSource(config.TimeSourceConfig{PollInterval: "fast"}); err == nil {
		t.Fatal("bad poll interval should fail")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sc      *config.StorageConfig
		enabled bool
		driver  string
		wantErr bool
	}{
		{name: "absent"},
		{name: "none", sc: &config.StorageConfig{Driver: "none"}},
		{name: "file", sc: &config.StorageConfig{Driver: "file", Path: "x.db"}, enabled: true, driver: "file"},
		{name: "sqlite", sc: &config.StorageConfig{Driver: "SQLite", Path: "x.db"}, enabled: true, driver: "sqlite"},
		{name: "sqlite without path", sc: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "unknown", sc: &config.StorageConfig{Driver: "bolt"}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, enabled, err := mapStorageConfig(&config.Config{Storage: tt.sc})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if enabled != tt.enabled || got.Driver != tt.driver {
				t.Fatalf("got %+v enabled=%v", got, enabled)
			}
		})
	}
}

func TestMapRetentionDefaults(t *testing.T) {
	t.Parallel()
	keep, at, err := mapRetention(&config.Config{Storage: &config.StorageConfig{Driver: "file"}})
	if err != nil || keep != defaultRetention || at != defaultPruneAt {
		t.Fatalf("defaults = %s %q %v", keep, at, err)
	}
	keep, at, err = mapRetention(&config.Config{Storage: &config.StorageConfig{Retention: "48h", PruneAt: "04:00"}})
	if err != nil || keep != 48*time.Hour || at != "04:00" {
		t.Fatalf("explicit = %s %q %v", keep, at, err)
	}
}

func TestDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		def     time.Duration
		want    time.Duration
		wantErr bool
	}{
		{raw: "", def: 2 * time.Second, want: 2 * time.Second},
		{raw: "0s", def: time.Second, want: time.Second},
		{raw: " 750ms ", def: time.Second, want: 750 * time.Millisecond},
		{raw: "", want: 0},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := durationField("x.y", tt.raw, tt.def)
		if (err != nil) != tt.wantErr {
			t.Fatalf("durationField(%q) err = %v", tt.raw, err)
		}
		if err == nil && got != tt.want {
			t.Fatalf("durationField(%q) = %s, want %s", tt.raw, got, tt.want)
		}
		if err != nil && !strings.Contains(err.Error(), "x.y") {
			t.Fatalf("error lacks key: %v", err)
		}
	}
}

func TestStepBoundsSlowShutdown(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop()}
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	a.step(context.Background(), "slow", 30*time.Millisecond, func(c context.Context) error {
		<-release
		return nil
	})
	if took := time.Since(start); took > time.Second {
		t.Fatalf("step blocked for %s", took)
	}
}
