// Package app is the process-wide context: it is built once from the config
// file, owns every long-lived component (timer service, board, time source,
// scheduler, storage) and wires them together.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lampdial/internal/board"
	"lampdial/internal/config"
	"lampdial/internal/eventbus"
	"lampdial/internal/hw"
	"lampdial/internal/observability/debug"
	"lampdial/internal/osal"
	"lampdial/internal/runtime/supervisor"
	"lampdial/internal/storage"
	"lampdial/internal/task/scheduler"
	"lampdial/internal/timesource"
	logx "lampdial/pkg/logx"
)

const (
	taskStopTimeout = 2 * time.Second
	resyncJob       = "timesource.resync"
	pruneJob        = "storage.prune"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	hwc   *hw.Closer

	timers *osal.TimerService
	board  *board.Board
	clock  *timesource.Service
	sched  *scheduler.Service
	debug  *debug.Server

	timersInit osal.TaskInit
	rxInit     osal.TaskInit
	txInit     osal.TaskInit
	tsInit     osal.TaskInit

	retention time.Duration
	pruneAt   string

	// shown carries the latest displayed time to the persistence loop.
	shown chan time.Time
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg.Logging))
	log = log.Named("app")
	bus := eventbus.New()

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		hwc:     &hw.Closer{},
		shown:   make(chan time.Time, 1),

		timersInit: osal.TaskInit{Name: "timers"},
		rxInit:     taskInit(cfg.Tasks.Receiver, "board.rx"),
		txInit:     taskInit(cfg.Tasks.Transmitter, "board.tx"),
		tsInit:     taskInit(cfg.Tasks.TimeSource, "timesource"),
	}
	if err := a.build(cfg); err != nil {
		_ = a.hwc.Close()
		if a.store != nil {
			_ = a.store.Close()
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if enabled {
		st, err := storage.Open(sc, a.log.Named("storage"))
		if err != nil {
			return err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	if a.retention, a.pruneAt, err = mapRetention(cfg); err != nil {
		return err
	}

	tcfg, err := mapTimers(cfg.Timers)
	if err != nil {
		return err
	}
	a.timers = osal.NewTimerService(tcfg, a.log.Named("timers"))

	bcfg, err := mapBoard(cfg.Board, a.log, a.hwc)
	if err != nil {
		return err
	}
	a.board = board.New(bcfg, a.log.Named("board"), a.bus)

	tscfg, syncer, err := mapTimeSource(cfg.TimeSource)
	if err != nil {
		return err
	}
	a.clock = timesource.New(tscfg, syncer, a.log,
		timesource.WithTimers(a.timers),
		timesource.WithBus(a.bus),
	)

	a.sched = scheduler.New(mapScheduler(cfg.TimeSource), a.log.Named("scheduler"))
	a.debug = debug.New(a.log, a.status)
	return nil
}

func (a *App) Board() *board.Board { return a.board }

func (a *App) TimeSource() *timesource.Service { return a.clock }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start brings components up leaf-first. Any creation failure aborts startup.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.Named("config"))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if r := strings.TrimSpace(cfg.TimeSource.Resync); r != "" {
			if _, err := scheduler.ParseSchedule(r); err != nil {
				return fmt.Errorf("timesource.resync: %w", err)
			}
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, _, err := mapRetention(cfg)
		return err
	})

	if err := a.timers.Start(run, a.timersInit); err != nil {
		return fmt.Errorf("timer service: %w", err)
	}
	if err := a.board.Init(run, a.rxInit, a.txInit); err != nil {
		return fmt.Errorf("board: %w", err)
	}
	if err := a.wire(); err != nil {
		return err
	}
	// Subscribe before the time source emits its first change.
	a.startJournal()
	a.restoreDisplay(run)
	if err := a.clock.Init(run, a.tsInit); err != nil {
		return fmt.Errorf("time source: %w", err)
	}

	cfg := a.cfgm.Get()
	a.applyResync(cfg.TimeSource.Resync)
	if a.store != nil {
		if err := a.sched.AddDaily(pruneJob, a.pruneAt, 30*time.Second, a.prune); err != nil {
			return fmt.Errorf("storage.prune_at: %w", err)
		}
	}
	a.sched.Start(run)

	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	if cfg.Systemd.Watchdog {
		a.startWatchdog()
	}
	a.debug.Apply(run, mapDebug(cfg.Debug))

	a.log.Info("app started",
		logx.String("config", a.cfgPath),
		logx.String("sync", a.clock.State().String()),
	)
	return nil
}

// wire connects the time source to the board. Clicks reach the journal
// through the bus; only a double click on the first button is acted on.
func (a *App) wire() error {
	if err := a.clock.RegisterCallback(timesource.EventTimeChanged, a.onTimeChanged); err != nil {
		return fmt.Errorf("time source callback: %w", err)
	}
	if err := a.board.RegisterCallback(board.EventButton1Double, a.onResyncButton); err != nil {
		return fmt.Errorf("board callback: %w", err)
	}
	return nil
}

// onTimeChanged runs on the time source task.
func (a *App) onTimeChanged(t time.Time) {
	if err := a.board.Publish(board.SetTime{Time: t}); err != nil {
		return
	}
	// Keep only the newest time for the persistence loop.
	select {
	case a.shown <- t:
	default:
		select {
		case <-a.shown:
		default:
		}
		select {
		case a.shown <- t:
		default:
		}
	}
}

// onResyncButton runs on the board transmitter task.
func (a *App) onResyncButton(board.Message) {
	a.log.Info("time resync requested by button")
	_ = a.clock.Publish(timesource.SyncRequest{})
}

// restoreDisplay shows the last persisted time until the time source takes over.
func (a *App) restoreDisplay(ctx context.Context) {
	if a.store == nil {
		return
	}
	lctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	shown, ok, err := a.store.LoadDisplay(lctx)
	if err != nil {
		a.log.Warn("display restore failed", logx.Err(err))
		return
	}
	if !ok {
		return
	}
	if err := a.board.Publish(board.SetTime{Time: shown}); err == nil {
		a.log.Debug("display restored", logx.Time("shown", shown))
	}
}

func (a *App) applyResync(spec string) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		if a.sched.Remove(resyncJob) {
			a.log.Info("time resync schedule removed")
		}
		return
	}
	err := a.sched.AddSchedule(resyncJob, spec, 10*time.Second, func(context.Context) error {
		return a.clock.Publish(timesource.SyncRequest{})
	})
	if err != nil {
		a.log.Warn("time resync schedule rejected", logx.String("spec", spec), logx.Err(err))
	}
}

func (a *App) prune(ctx context.Context) error {
	n, err := a.store.PruneEvents(ctx, time.Now().Add(-a.retention))
	if err != nil {
		return err
	}
	if n > 0 {
		a.log.Info("journal pruned", logx.Int("removed", n), logx.Duration("retention", a.retention))
	}
	return nil
}

// startJournal logs bus events and persists them together with the shown time.
func (a *App) startJournal() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.journal", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				if a.store != nil {
					if err := a.store.AppendEvent(c, e); err != nil {
						a.log.Warn("journal append failed", logx.String("type", e.Type), logx.Err(err))
					}
				}
			case t := <-a.shown:
				if a.store != nil {
					if err := a.store.SaveDisplay(c, t); err != nil {
						a.log.Warn("display save failed", logx.Err(err))
					}
				}
			}
		}
	})
}

// Status is the snapshot served at /status.
type Status struct {
	Board     board.Stats              `json:"board"`
	Sync      string                   `json:"sync"`
	Offset    string                   `json:"offset"`
	Now       time.Time                `json:"now"`
	Schedules []scheduler.ScheduleInfo `json:"schedules"`
}

func (a *App) status() any {
	return Status{
		Board:     a.board.Stats(),
		Sync:      a.clock.State().String(),
		Offset:    a.clock.Offset().String(),
		Now:       a.clock.Now(),
		Schedules: a.sched.Snapshot(),
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so every loop starts unwinding.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		a.step(ctx, name, max, fn)
	}
	step("debug", 2*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("timesource", 3*time.Second, func(context.Context) error { return a.clock.Deinit(taskStopTimeout) })
	step("board", 3*time.Second, func(context.Context) error { return a.board.Deinit(taskStopTimeout) })
	step("timers", 3*time.Second, func(context.Context) error { return a.timers.Stop(taskStopTimeout) })
	// Supervised loops (config, journal, watchdog) go before storage they write to.
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("hardware", 1*time.Second, func(context.Context) error { return a.hwc.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	stepCtx := ctx
	if dl, ok := ctx.Deadline(); ok {
		// respect the caller's deadline; never extend it
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Err(err),
				logx.Duration("took", time.Since(start)),
			)
		}()
	}
}
