package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

const sampleYAML = `
logging:
  level: debug
  console: true
board:
  queue_length: 10
  poll_interval: 500ms
  expander:
    driver: memory
    address: 0x20
  lamps:
    - { group: A, mask: 0xF0 }
    - { group: B, mask: 0x0F }
timesource:
  timezone: UTC
  resync: "@every 6h"
systemd:
  watchdog: false
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("lampdial.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Board.Expander.Address != 0x20 {
		t.Fatalf("address = %s, want 0x20", cfg.Board.Expander.Address)
	}
	if len(cfg.Board.Lamps) != 2 || cfg.Board.Lamps[0].Mask != 0xF0 {
		t.Fatalf("lamps = %+v", cfg.Board.Lamps)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()
	const path = "../../lampdial.yaml"
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Decode(path, b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Board.Lamps) != 4 || cfg.Board.Lamps[0].Mask != 0xF0 || cfg.Board.Expander.Address != 0x20 {
		t.Fatalf("board = %+v", cfg.Board)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestHexFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		file    string
		body    string
		addr    Hex
		mask    Hex
		wantErr bool
	}{
		{name: "json numbers", file: "c.json", body: `{"board":{"expander":{"address":32},"lamps":[{"group":"A","mask":240}]}}`, addr: 0x20, mask: 0xF0},
		{name: "json hex strings", file: "c.json", body: `{"board":{"expander":{"address":"0x27"},"lamps":[{"group":"A","mask":"0x0F"}]}}`, addr: 0x27, mask: 0x0F},
		{name: "yaml literals", file: "c.yaml", body: "board:\n  expander: {address: 0x21}\n  lamps: [{group: B, mask: 0xF0}]\n", addr: 0x21, mask: 0xF0},
		{name: "yaml quoted", file: "c.yaml", body: "board:\n  expander: {address: \"0x22\"}\n  lamps: [{group: B, mask: \"0xF0\"}]\n", addr: 0x22, mask: 0xF0},
		{name: "garbage", file: "c.json", body: `{"board":{"lamps":[{"group":"A","mask":"lots"}]}}`, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tt.file, []byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if cfg.Board.Expander.Address != tt.addr || cfg.Board.Lamps[0].Mask != tt.mask {
				t.Fatalf("address=%s mask=%s, want %s %s", cfg.Board.Expander.Address, cfg.Board.Lamps[0].Mask, tt.addr, tt.mask)
			}
		})
	}
	if got := Hex(0x0F).String(); got != "0x0F" {
		t.Fatalf("String = %q", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown field", file: "c.json", body: `{"board":{"lamp_count":4}}`},
		{name: "trailing data", file: "c.json", body: `{} {}`},
		{name: "bad yaml", file: "c.yml", body: "board: [\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.file, []byte(tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults ok", mutate: func(c *Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "bad component level", mutate: func(c *Config) { c.Logging.Components = map[string]string{"board.rx": "chatty"} }, wantErr: "logging.components.board.rx"},
		{name: "bad group", mutate: func(c *Config) { c.Board.Lamps = []LampConfig{{Group: "C", Mask: 0x0F}} }, wantErr: "board.lamps[0]"},
		{name: "zero mask", mutate: func(c *Config) { c.Board.Lamps = []LampConfig{{Group: "A"}} }, wantErr: "mask"},
		{name: "bad driver", mutate: func(c *Config) { c.Board.Expander.Driver = "spi" }, wantErr: "board.expander.driver"},
		{name: "bad address", mutate: func(c *Config) { c.Board.Expander.Address = 0x80 }, wantErr: "board.expander.address"},
		{name: "bad duration", mutate: func(c *Config) { c.Board.PollInterval = "soon" }, wantErr: "board.poll_interval"},
		{name: "negative duration", mutate: func(c *Config) { c.TimeSource.RetryDelay = "-1s" }, wantErr: "timesource.retry_delay"},
		{name: "bad timezone", mutate: func(c *Config) { c.TimeSource.Timezone = "Mars/Olympus" }, wantErr: "timesource.timezone"},
		{name: "storage retention", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "file", Retention: "forever"} }, wantErr: "storage.retention"},
		{name: "debug address", mutate: func(c *Config) { c.Debug = DebugConfig{Enabled: true, Address: "6060"} }, wantErr: "debug.address"},
		{name: "storage duration", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite", BusyTimeout: "x"} }, wantErr: "storage.busy_timeout"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	base := &Config{TimeSource: TimeSourceConfig{Resync: "@every 1h"}}

	resync := *base
	resync.TimeSource.Resync = "@every 2h"
	changed, _, restart := SummarizeConfigChange(base, &resync)
	if strings.Join(changed, ",") != "timesource" || len(restart) != 0 {
		t.Fatalf("resync change: changed=%v restart=%v", changed, restart)
	}

	tz := *base
	tz.TimeSource.Timezone = "UTC"
	tz.Board.QueueLength = 20
	changed, _, restart = SummarizeConfigChange(base, &tz)
	if strings.Join(changed, ",") != "board,timesource" {
		t.Fatalf("changed = %v", changed)
	}
	if strings.Join(restart, ",") != "board,timesource" {
		t.Fatalf("restart = %v", restart)
	}

	lvl := *base
	lvl.Logging.Level = "debug"
	changed, _, restart = SummarizeConfigChange(base, &lvl)
	if strings.Join(changed, ",") != "logging" || len(restart) != 0 {
		t.Fatalf("logging change: changed=%v restart=%v", changed, restart)
	}

	dbg := *base
	dbg.Debug.Enabled = true
	changed, _, restart = SummarizeConfigChange(base, &dbg)
	if strings.Join(changed, ",") != "debug" || len(restart) != 0 {
		t.Fatalf("debug change: changed=%v restart=%v", changed, restart)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "lampdial.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return Validate(cfg) })
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"nonsense"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * reloadDebounce)
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q, want debug", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if got := m.Get().Logging.Level; got != "debug" {
		t.Fatalf("committed level = %q", got)
	}
}
