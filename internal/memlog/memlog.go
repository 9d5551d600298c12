// Package memlog provides structured logging with component-aware debug filtering
// for the memory extraction and retrieval pipeline.
package memlog

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes component-tagged log lines to stderr.
type Logger struct {
	component string
	logger    *log.Logger
}

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// debugConfig controls which components emit debug-level output.
type debugConfig struct {
	enabled bool
	domains map[string]bool // nil = all domains
}

//nolint:gochecknoglobals // single process-wide debug toggle, mirrors teacher's package-level config
var (
	cfg      = &debugConfig{}
	cfgMutex sync.RWMutex
)

func init() { //nolint:gochecknoinits // env-driven defaults, same pattern as teacher logx
	initFromEnv()
}

// initFromEnv reads MEMORY_DEBUG / MEMORY_DEBUG_DOMAINS to turn on debug
// logging, optionally scoped to a comma-separated list of domains.
func initFromEnv() {
	cfgMutex.Lock()
	defer cfgMutex.Unlock()

	if v := os.Getenv("MEMORY_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		cfg.enabled = true
	}

	if domains := os.Getenv("MEMORY_DEBUG_DOMAINS"); domains != "" {
		cfg.domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			cfg.domains[strings.TrimSpace(d)] = true
		}
	}
}

// SetDebug enables or disables debug logging process-wide, optionally restricted
// to a set of component names.
func SetDebug(enabled bool, domains ...string) {
	cfgMutex.Lock()
	defer cfgMutex.Unlock()

	cfg.enabled = enabled
	if len(domains) == 0 {
		cfg.domains = nil
		return
	}
	cfg.domains = make(map[string]bool, len(domains))
	for _, d := range domains {
		cfg.domains[d] = true
	}
}

// IsDebugEnabledFor reports whether debug logging is active for a component.
func IsDebugEnabledFor(component string) bool {
	cfgMutex.RLock()
	defer cfgMutex.RUnlock()

	if !cfg.enabled {
		return false
	}
	if cfg.domains == nil {
		return true
	}
	return cfg.domains[component]
}

// NewLogger returns a Logger tagged with the given component name.
func NewLogger(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0),
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.component, level, message))
}

// Debug logs a debug-level message if debug logging is enabled for this component.
func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabledFor(l.component) {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Component returns the component name this logger is tagged with.
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a copy of the logger tagged with a different component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component, logger: l.logger}
}

// contextKey namespaces values stored on a context.Context by this package.
type contextKey string

const agentIDKey contextKey = "memlog_agent_id"

// WithAgentID attaches an agent/worker identifier to a context for later retrieval by Debug.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID)
}

// Debug logs a component-scoped debug message, reading an optional agent id from ctx.
func Debug(ctx context.Context, component, format string, args ...any) {
	if !IsDebugEnabledFor(component) {
		return
	}
	agentID := "unknown"
	if ctx != nil {
		if v, ok := ctx.Value(agentIDKey).(string); ok && v != "" {
			agentID = v
		}
	}
	logger := NewLogger(agentID)
	logger.log(LevelDebug, "[%s] %s", component, fmt.Sprintf(format, args...))
}

//nolint:gochecknoglobals // package-level convenience logger, mirrors teacher's defaultLogger
var defaultLogger = NewLogger("memlayer")

func Debugf(format string, args ...any) { defaultLogger.Debug(format, args...) }
func Infof(format string, args ...any)  { defaultLogger.Info(format, args...) }
func Warnf(format string, args ...any)  { defaultLogger.Warn(format, args...) }

// Errorf logs and returns the formatted error in one call.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns a wrapped error, or nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
