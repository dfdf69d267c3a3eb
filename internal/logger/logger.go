// Package logger provides process-wide logging for openleg-sync.
// Messages go through a zap core; --verbose lowers the level to debug so
// users can follow each page an importer fetches.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level and encoding.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Encoding is "console" or "json".
	Encoding string
}

var (
	mu       sync.RWMutex
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base     = zapcore.InfoLevel
	verbose  bool
	encoding = "console"
	output   io.Writer = os.Stderr
	sugar    *zap.SugaredLogger
)

func init() {
	rebuild()
}

// Configure applies level and encoding settings.
// Unknown levels fall back to info.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	lvl := zapcore.InfoLevel
	if err := lvl.Set(strings.ToLower(cfg.Level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	base = lvl
	if !verbose {
		level.SetLevel(lvl)
	}
	if cfg.Encoding == "json" || cfg.Encoding == "console" {
		encoding = cfg.Encoding
	}
	rebuild()
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(base)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

// rebuild must be called with mu held.
func rebuild() {
	var enc zapcore.Encoder
	if encoding == "json" {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = ""
		cfg.CallerKey = ""
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(output)), level)
	sugar = zap.New(core).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// With returns a structured logger carrying the given key/value pairs.
func With(keysAndValues ...any) *zap.SugaredLogger {
	return current().With(keysAndValues...)
}

// Debug logs a printf-style message at debug level.
func Debug(format string, args ...any) {
	current().Debugf(format, args...)
}

// Section logs a section header at debug level.
func Section(name string) {
	current().Debugf("=== %s ===", name)
}

// Info logs a printf-style message at info level.
func Info(format string, args ...any) {
	current().Infof(format, args...)
}

// Warn logs a printf-style message at warn level.
func Warn(format string, args ...any) {
	current().Warnf(format, args...)
}

// Error logs a printf-style message at error level.
func Error(format string, args ...any) {
	current().Errorf(format, args...)
}

// Sync flushes buffered entries.
func Sync() {
	_ = current().Sync()
}
