package app

import (
	"context"
	"strings"

	"lampdial/internal/config"
	logx "lampdial/pkg/logx"
)

// startReload applies hot-reloadable sections (logging, resync schedule) and
// warns about everything that needs a restart.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = coalesce(sub, newCfg)
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

// coalesce drains bursts and keeps only the latest config.
func coalesce(sub <-chan *config.Config, cur *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cur
			}
			if newer != nil {
				cur = newer
			}
		default:
			return cur
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLogging(newCfg.Logging))

	if strings.TrimSpace(oldCfg.TimeSource.Resync) != strings.TrimSpace(newCfg.TimeSource.Resync) {
		a.applyResync(newCfg.TimeSource.Resync)
	}
	if oldCfg.Debug != newCfg.Debug {
		a.debug.Apply(context.Background(), mapDebug(newCfg.Debug))
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
