package app

import (
	"fmt"
	"strings"
	"time"

	"lampdial/internal/board"
	"lampdial/internal/config"
	"lampdial/internal/dial"
	"lampdial/internal/expander"
	"lampdial/internal/hw"
	"lampdial/internal/observability/debug"
	"lampdial/internal/osal"
	"lampdial/internal/storage"
	"lampdial/internal/task/scheduler"
	"lampdial/internal/timesource"
	logx "lampdial/pkg/logx"
)

const (
	defaultRetention = 30 * 24 * time.Hour
	defaultPruneAt   = "03:30"
)

var defaultServers = []string{"pool.ntp.org"}

// durationField parses a config duration. Empty or zero yields def; a zero
// def leaves the component default in place.
func durationField(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", key)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},

		Components: c.Components,
	}
}

func taskInit(tc config.TaskConfig, name string) osal.TaskInit {
	if n := strings.TrimSpace(tc.Name); n != "" {
		name = n
	}
	return osal.TaskInit{Name: name, StackSize: tc.StackSize, Priority: tc.Priority}
}

func mapTimers(c config.TimersConfig) (osal.TimerServiceConfig, error) {
	wait, err := durationField("timers.delete_wait", c.DeleteWait, 0)
	if err != nil {
		return osal.TimerServiceConfig{}, err
	}
	return osal.TimerServiceConfig{QueueLength: c.QueueLength, DeleteWait: wait}, nil
}

// mapBoard opens the hardware the board config names and registers every
// opened resource with closer.
func mapBoard(c config.BoardConfig, log logx.Logger, closer *hw.Closer) (board.Config, error) {
	poll, err := durationField("board.poll_interval", c.PollInterval, 0)
	if err != nil {
		return board.Config{}, err
	}
	click, err := mapClick(c.Click)
	if err != nil {
		return board.Config{}, err
	}
	layout, err := mapLayout(c.Lamps)
	if err != nil {
		return board.Config{}, err
	}
	out := board.Config{
		QueueLength:  c.QueueLength,
		PollInterval: poll,
		Callbacks:    c.Callbacks,
		Layout:       layout,
		Click:        click,
	}

	driver := strings.ToLower(strings.TrimSpace(c.Expander.Driver))
	needHost := driver != "memory" || len(c.Buttons) > 0 || strings.TrimSpace(c.Buzzer.Pin) != ""
	if needHost {
		if err := hw.Init(log); err != nil {
			return board.Config{}, err
		}
	}

	switch driver {
	case "memory":
		out.Expander = expander.NewMemory()
	case "", "mcp23017":
		bus, err := hw.OpenI2C(c.Expander.Bus)
		if err != nil {
			return board.Config{}, err
		}
		closer.Add(bus)
		out.Expander = expander.NewMCP23017(bus, uint16(c.Expander.Address))
	default:
		return board.Config{}, fmt.Errorf("board.expander.driver: unknown driver %q", c.Expander.Driver)
	}

	for _, name := range c.Buttons {
		pin, err := hw.Button(name)
		if err != nil {
			return board.Config{}, err
		}
		out.Buttons = append(out.Buttons, pin)
	}

	if pin := strings.TrimSpace(c.Buzzer.Pin); pin != "" {
		p, err := hw.Output(pin)
		if err != nil {
			return board.Config{}, err
		}
		out.Buzzer = board.NewPinBuzzer(p)
	} else {
		out.Buzzer = board.NewLogBuzzer(log.Named("board.buzzer"))
	}
	return out, nil
}

func mapLayout(lamps []config.LampConfig) ([]dial.LampSpec, error) {
	if len(lamps) == 0 {
		return nil, nil
	}
	out := make([]dial.LampSpec, 0, len(lamps))
	for i, l := range lamps {
		g, err := config.ParseGroup(l.Group)
		if err != nil {
			return nil, fmt.Errorf("board.lamps[%d]: %w", i, err)
		}
		out = append(out, dial.LampSpec{Group: expander.Group(g), Mask: uint8(l.Mask)})
	}
	return out, nil
}

func mapClick(c config.ClickConfig) (board.ClickConfig, error) {
	var out board.ClickConfig
	var err error
	if out.Poll, err = durationField("board.click.poll", c.Poll, 0); err != nil {
		return out, err
	}
	if out.Debounce, err = durationField("board.click.debounce", c.Debounce, 0); err != nil {
		return out, err
	}
	if out.DoubleWindow, err = durationField("board.click.double_window", c.DoubleWindow, 0); err != nil {
		return out, err
	}
	out.MaxPerSec = c.MaxPerSec
	return out, nil
}

// mapTimeSource returns the service config and its syncer; a nil syncer
// means the host clock is trusted.
func mapTimeSource(c config.TimeSourceConfig) (timesource.Config, timesource.Syncer, error) {
	var out timesource.Config
	var err error
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if out.Location, err = time.LoadLocation(tz); err != nil {
			return out, nil, fmt.Errorf("timesource.timezone: invalid %q: %w", tz, err)
		}
	}
	if out.PollInterval, err = durationField("timesource.poll_interval", c.PollInterval, 0); err != nil {
		return out, nil, err
	}
	if out.RetryDelay, err = durationField("timesource.retry_delay", c.RetryDelay, 0); err != nil {
		return out, nil, err
	}
	qt, err := durationField("timesource.query_timeout", c.QueryTimeout, 0)
	if err != nil {
		return out, nil, err
	}
	out.RetryCount = c.RetryCount
	out.Callbacks = c.Callbacks

	if c.Disabled {
		return out, nil, nil
	}
	servers := c.Servers
	if len(servers) == 0 {
		servers = defaultServers
	}
	return out, timesource.NewNTPSyncer(servers, qt), nil
}

// mapScheduler shares the dial timezone so daily jobs fire at local wall time.
func mapScheduler(c config.TimeSourceConfig) scheduler.Config {
	return scheduler.Config{Timezone: strings.TrimSpace(c.Timezone)}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := durationField("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapRetention returns the journal age to keep and the daily prune time.
func mapRetention(cfg *config.Config) (time.Duration, string, error) {
	if cfg == nil || cfg.Storage == nil {
		return defaultRetention, defaultPruneAt, nil
	}
	keep, err := durationField("storage.retention", cfg.Storage.Retention, defaultRetention)
	if err != nil {
		return 0, "", err
	}
	at := strings.TrimSpace(cfg.Storage.PruneAt)
	if at == "" {
		at = defaultPruneAt
	}
	return keep, at, nil
}

func mapDebug(c config.DebugConfig) debug.Config {
	return debug.Config{
		Enabled:              c.Enabled,
		Address:              strings.TrimSpace(c.Address),
		BlockProfileRate:     c.BlockProfileRate,
		MutexProfileFraction: c.MutexProfileFraction,
	}
}
