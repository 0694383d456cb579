package config

import (
	"reflect"
	"strings"

	logx "lampdial/pkg/logx"
)

// Sections that take effect without a restart.
var hotSections = map[string]bool{
	"logging":    true,
	"timesource": true, // resync schedule only
	"debug":      true,
}

// SummarizeConfigChange returns the changed sections, structured attrs for logging,
// and the subset of changed sections that need a restart to take effect.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Tasks, newCfg.Tasks) {
		changed = append(changed, "tasks")
	}
	if !reflect.DeepEqual(oldCfg.Board, newCfg.Board) {
		changed = append(changed, "board")
		attrs = append(attrs,
			logx.String("board.expander", strings.TrimSpace(newCfg.Board.Expander.Driver)),
			logx.Int("board.lamps", len(newCfg.Board.Lamps)),
			logx.Int("board.buttons", len(newCfg.Board.Buttons)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Timers, newCfg.Timers) {
		changed = append(changed, "timers")
	}

	resyncChanged := strings.TrimSpace(oldCfg.TimeSource.Resync) != strings.TrimSpace(newCfg.TimeSource.Resync)
	oTS, nTS := oldCfg.TimeSource, newCfg.TimeSource
	oTS.Resync, nTS.Resync = "", ""
	tsRestart := !reflect.DeepEqual(oTS, nTS)
	if resyncChanged || tsRestart {
		changed = append(changed, "timesource")
		attrs = append(attrs,
			logx.String("timesource.resync", strings.TrimSpace(newCfg.TimeSource.Resync)),
			logx.String("timesource.timezone", strings.TrimSpace(newCfg.TimeSource.Timezone)),
			logx.Bool("timesource.restart_needed", tsRestart),
		)
	}

	if !reflect.DeepEqual(derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)) ||
		(oldCfg.Storage == nil) != (newCfg.Storage == nil) {
		changed = append(changed, "storage")
		ns := derefStorage(newCfg.Storage)
		attrs = append(attrs, logx.String("storage.driver", strings.TrimSpace(ns.Driver)))
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog))
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.address", strings.TrimSpace(newCfg.Debug.Address)),
		)
	}

	restart := make([]string, 0, len(changed))
	for _, s := range changed {
		if !hotSections[s] || (s == "timesource" && tsRestart) {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
