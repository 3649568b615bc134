// Package logging provides the leveled logger used by every filer component.
//
// Loggers are created from a Provider and handed to components at
// construction; there is no process-wide logger.
//
//	p, err := logging.NewProvider(logging.Config{
//	    Level: "info",
//	    Path:  "logs/app.log",
//	})
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	log := p.Get("scanner")
//	log.Info("scan started", "root", "/data")
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures a Provider.
type Config struct {
	// Level is the default level for the log file.
	Level string

	// Path is the log file path. Empty disables the file sink.
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components overrides Level per component name.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level. Empty disables it.
	ConsoleLevel string
}

// Logger writes leveled, structured messages for one component.
// A nil *Logger is valid and discards everything.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Failure logs err at error level together with the current stack trace.
func (l *Logger) Failure(msg string, err error, args ...interface{}) {
	kv := append([]interface{}{"error", err}, args...)
	kv = append(kv, "stack", string(debug.Stack()))
	l.log(LevelError, msg, kv...)
}

// With returns a new logger with additional key/value context.
func (l *Logger) With(args ...interface{}) *Logger {
	if l == nil {
		return nil
	}
	next := &Logger{component: l.component}
	if l.file != nil {
		next.file = l.file.With(args...)
	}
	if l.console != nil {
		next.console = l.console.With(args...)
	}
	return next
}

// Component returns the component name the logger was created for.
func (l *Logger) Component() string {
	if l == nil {
		return ""
	}
	return l.component
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	if l.file != nil {
		logTo(l.file, level, msg, args...)
	}
	if l.console != nil {
		logTo(l.console, level, msg, args...)
	}
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return &Logger{component: "nop"}
}

// NewWriter returns a logger writing plain logfmt-style lines to w.
// It is meant for embedding and tests.
func NewWriter(w io.Writer, level Level, component string) *Logger {
	return &Logger{
		file: log.NewWithOptions(w, log.Options{
			Level:     level.charm(),
			Prefix:    component,
			Formatter: log.LogfmtFormatter,
		}),
		component: component,
	}
}

// callerDepth skips Logger.<Level>, Logger.log and logTo when reporting the caller.
const callerDepth = 3

// Provider owns the log sinks and hands out component loggers.
type Provider struct {
	mu         sync.Mutex
	writer     *RotatingWriter
	level      Level
	components map[string]Level
	console    bool
	consoleLvl Level
	loggers    map[string]*Logger
}

// NewProvider opens the configured sinks.
func NewProvider(cfg Config) (*Provider, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	p := &Provider{
		level:      level,
		components: make(map[string]Level, len(cfg.Components)),
		loggers:    make(map[string]*Logger),
	}

	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		p.components[comp] = parsed
	}

	if cfg.ConsoleLevel != "" {
		p.consoleLvl, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return nil, fmt.Errorf("parsing console level: %w", err)
		}
		p.console = true
	}

	if cfg.Path != "" {
		w, err := NewRotatingWriter(cfg.Path, cfg.Rotation)
		if err != nil {
			return nil, fmt.Errorf("creating log writer: %w", err)
		}
		p.writer = w
	}

	return p, nil
}

// Get returns the logger for component, creating it on first use.
func (p *Provider) Get(component string) *Logger {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.loggers[component]; ok {
		return l
	}

	level := p.level
	if override, ok := p.components[component]; ok {
		level = override
	}

	l := &Logger{component: component}
	if p.writer != nil {
		l.file = log.NewWithOptions(p.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			ReportCaller:    true,
			CallerOffset:    callerDepth,
			TimeFormat:      "2006-01-02 15:04:05",
			Prefix:          component,
		})
	}
	if p.console {
		l.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           p.consoleLvl.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
			Prefix:          component,
		})
	}

	p.loggers[component] = l
	return l
}

// Close flushes and closes the log file.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}
