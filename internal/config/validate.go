package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	logx "lampdial/pkg/logx"
)

// Validate performs the structural checks that need no hardware or network.
// Cron specs are checked by the scheduler package.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	for comp, lvl := range cfg.Logging.Components {
		if strings.TrimSpace(comp) == "" || strings.TrimSpace(lvl) == "" || !logx.ValidLevel(lvl) {
			return fmt.Errorf("logging.components.%s: unknown level %q", comp, lvl)
		}
	}

	for key, tc := range map[string]TaskConfig{
		"tasks.receiver":    cfg.Tasks.Receiver,
		"tasks.transmitter": cfg.Tasks.Transmitter,
		"tasks.timesource":  cfg.Tasks.TimeSource,
	} {
		if tc.StackSize < 0 {
			return fmt.Errorf("%s.stack_size must be >= 0", key)
		}
	}

	b := cfg.Board
	if b.QueueLength < 0 {
		return fmt.Errorf("board.queue_length must be >= 0")
	}
	if b.Callbacks < 0 {
		return fmt.Errorf("board.callbacks must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(b.Expander.Driver)) {
	case "", "mcp23017", "memory":
	default:
		return fmt.Errorf("board.expander.driver: unknown driver %q", b.Expander.Driver)
	}
	if b.Expander.Address < 0 || b.Expander.Address > 0x7F {
		return fmt.Errorf("board.expander.address: %s is not a 7-bit I2C address", b.Expander.Address)
	}
	for i, l := range b.Lamps {
		if _, err := ParseGroup(l.Group); err != nil {
			return fmt.Errorf("board.lamps[%d]: %w", i, err)
		}
		if l.Mask <= 0 || l.Mask > 0xFF {
			return fmt.Errorf("board.lamps[%d].mask must be in 0x01..0xFF", i)
		}
	}
	for i, p := range b.Buttons {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("board.buttons[%d]: empty pin name", i)
		}
	}
	if b.Click.MaxPerSec < 0 {
		return fmt.Errorf("board.click.max_per_sec must be >= 0")
	}

	if cfg.Timers.QueueLength < 0 {
		return fmt.Errorf("timers.queue_length must be >= 0")
	}

	ts := cfg.TimeSource
	if ts.RetryCount < 0 {
		return fmt.Errorf("timesource.retry_count must be >= 0")
	}
	if ts.Callbacks < 0 {
		return fmt.Errorf("timesource.callbacks must be >= 0")
	}
	if tz := strings.TrimSpace(ts.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timesource.timezone: invalid %q: %w", tz, err)
		}
	}

	durations := map[string]string{
		"board.poll_interval":       b.PollInterval,
		"board.click.poll":          b.Click.Poll,
		"board.click.debounce":      b.Click.Debounce,
		"board.click.double_window": b.Click.DoubleWindow,
		"timers.delete_wait":        cfg.Timers.DeleteWait,
		"timesource.poll_interval":  ts.PollInterval,
		"timesource.retry_delay":    ts.RetryDelay,
		"timesource.query_timeout":  ts.QueryTimeout,
	}
	if cfg.Storage != nil {
		durations["storage.busy_timeout"] = cfg.Storage.BusyTimeout
		durations["storage.retention"] = cfg.Storage.Retention
	}
	for key, raw := range durations {
		if err := checkDuration(key, raw); err != nil {
			return err
		}
	}

	if addr := strings.TrimSpace(cfg.Debug.Address); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("debug.address: %w", err)
		}
	}
	return nil
}

// ParseGroup maps "A"/"B" (case-insensitive) to 0/1.
func ParseGroup(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return 0, nil
	case "B":
		return 1, nil
	}
	return 0, fmt.Errorf("group must be A or B, got %q", s)
}

// checkDuration accepts an empty string (component default) or a
// non-negative Go duration.
func checkDuration(key, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d < 0 {
		return fmt.Errorf("%s: duration must be >= 0", key)
	}
	return nil
}
