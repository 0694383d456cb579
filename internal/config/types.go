package config

type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Tasks      TasksConfig      `json:"tasks"`
	Board      BoardConfig      `json:"board"`
	Timers     TimersConfig     `json:"timers"`
	TimeSource TimeSourceConfig `json:"timesource"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
	Systemd    SystemdConfig    `json:"systemd"`
	Debug      DebugConfig      `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// Components overrides level per component ("board.rx", "timesource").
	Components map[string]string `json:"components,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TaskConfig describes one long-lived task. StackSize and Priority are
// carried for parity with the firmware descriptors; the Go scheduler
// ignores both.
type TaskConfig struct {
	Name      string `json:"name"`
	StackSize int    `json:"stack_size,omitempty"`
	Priority  int    `json:"priority,omitempty"`
}

type TasksConfig struct {
	Receiver    TaskConfig `json:"receiver"`
	Transmitter TaskConfig `json:"transmitter"`
	TimeSource  TaskConfig `json:"timesource"`
}

// BoardConfig controls the display board.
//
// Defaults (when fields are omitted/zero):
//   - queue_length: 10
//   - poll_interval: "500ms"
//   - callbacks: 5
//   - expander: { driver: "mcp23017", bus: "", address: 0x20 }
//   - lamps: the four-lamp layout 0xF0/A, 0x0F/B, 0xF0/B, 0x0F/A
type BoardConfig struct {
	QueueLength  int    `json:"queue_length,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	Callbacks    int    `json:"callbacks,omitempty"`

	Expander ExpanderConfig `json:"expander"`
	Lamps    []LampConfig   `json:"lamps,omitempty"`

	// Buttons are periph gpioreg pin names (e.g. "GPIO12").
	Buttons []string     `json:"buttons,omitempty"`
	Buzzer  BuzzerConfig `json:"buzzer"`
	Click   ClickConfig  `json:"click"`
}

type ExpanderConfig struct {
	// Driver is "mcp23017" (I2C) or "memory" (no hardware).
	Driver  string `json:"driver,omitempty"`
	Bus     string `json:"bus,omitempty"`
	Address Hex    `json:"address,omitempty"`
}

type LampConfig struct {
	// Group is "A" or "B".
	Group string `json:"group"`
	Mask  Hex    `json:"mask"`
}

// BuzzerConfig selects the buzzer output. An empty pin logs instead of driving hardware.
type BuzzerConfig struct {
	Pin string `json:"pin,omitempty"`
}

// ClickConfig tunes the button click detector. Durations are Go duration strings.
type ClickConfig struct {
	Poll         string  `json:"poll,omitempty"`          // default "10ms"
	Debounce     string  `json:"debounce,omitempty"`      // default "30ms"
	DoubleWindow string  `json:"double_window,omitempty"` // default "300ms"
	MaxPerSec    float64 `json:"max_per_sec,omitempty"`   // default 10
}

type TimersConfig struct {
	QueueLength int    `json:"queue_length,omitempty"` // default 16
	DeleteWait  string `json:"delete_wait,omitempty"`  // default "1s"
}

// TimeSourceConfig controls the wall-clock service.
//
// Resync is a cron spec (robfig/cron, optional seconds field) or "@every 6h".
// Empty disables periodic resync; the service still syncs when the clock is unset.
type TimeSourceConfig struct {
	Timezone     string   `json:"timezone,omitempty"`
	PollInterval string   `json:"poll_interval,omitempty"` // default "500ms"
	Servers      []string `json:"servers,omitempty"`       // default ["pool.ntp.org"]
	RetryCount   int      `json:"retry_count,omitempty"`   // default 10
	RetryDelay   string   `json:"retry_delay,omitempty"`   // default "2s"
	QueryTimeout string   `json:"query_timeout,omitempty"` // default "5s"
	Resync       string   `json:"resync,omitempty"`
	Callbacks    int      `json:"callbacks,omitempty"` // default 5
	// Disabled skips NTP entirely and trusts the host clock.
	Disabled bool `json:"disabled,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./lampdial.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Retention   string `json:"retention,omitempty"`    // journal age kept, default "720h"
	PruneAt     string `json:"prune_at,omitempty"`     // daily HH:MM, default "03:30"
}

type SystemdConfig struct {
	// Watchdog pings the service manager when WATCHDOG_USEC is set.
	Watchdog bool `json:"watchdog"`
}

// DebugConfig controls the diagnostics listener (pprof and /status).
type DebugConfig struct {
	Enabled              bool   `json:"enabled"`
	Address              string `json:"address,omitempty"` // default "127.0.0.1:6060"
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}
