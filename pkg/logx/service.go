package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	defaultLogFile    = "./lampdial.log"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	// Components overrides Level per component, e.g. {"board.rx": "debug"}.
	// A key also covers its dotted children ("board" covers "board.tx").
	Components map[string]string
}

type FileConfig struct {
	Enabled bool
	Path    string
}

func init() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat
}

type levels struct {
	def   Level
	comps map[string]Level
}

// Service owns the sinks. Apply swaps them and the levels without
// invalidating Loggers already handed out.
type Service struct {
	mu   sync.Mutex
	file *os.File

	root  atomic.Pointer[zerolog.Logger]
	level atomic.Pointer[levels]
}

// New applies cfg and returns the service with its root Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) levelFor(comp string) Level {
	lv := s.level.Load()
	if lv == nil {
		return LevelInfo
	}
	for comp != "" {
		if l, ok := lv.comps[comp]; ok {
			return l
		}
		i := strings.LastIndexByte(comp, '.')
		if i < 0 {
			break
		}
		comp = comp[:i]
	}
	return lv.def
}

// Apply is safe to call concurrently with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %q: %v\n", path, err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(os.Stdout))
	}

	lv := &levels{def: parseLevel(cfg.Level, LevelInfo), comps: make(map[string]Level, len(cfg.Components))}
	for comp, name := range cfg.Components {
		lv.comps[strings.TrimSpace(comp)] = parseLevel(name, lv.def)
	}
	// Filtering happens in Logger.Enabled; the sink accepts everything.
	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).Level(LevelTrace).With().Timestamp().Logger()
	s.level.Store(lv)
	s.root.Store(&zl)
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

func consoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

func parseLevel(s string, def Level) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return def
}

// ValidLevel reports whether s names a known level; empty means the default.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
