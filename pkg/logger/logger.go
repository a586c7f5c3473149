// Package logger provides standardized logging utilities for the formula compiler
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Global logger instance
var defaultLogger *slog.Logger

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level     LogLevel
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	LogFile   string
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var handler slog.Handler

	output := cfg.Output
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		output = file
	}

	opts := &slog.HandlerOptions{
		Level:     toSlogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)

	return nil
}

// InitDev initializes logging for development (debug level, text format)
func InitDev() {
	_ = Init(Config{
		Level:     LevelDebug,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: true,
	})
}

// InitProd initializes logging for production (info level, json format)
func InitProd(logDir string) error {
	logPath := filepath.Join(logDir, "formulac.log")
	return Init(Config{
		Level:     LevelInfo,
		Format:    "json",
		LogFile:   logPath,
		AddSource: false,
	})
}

var slogLevels = map[LogLevel]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

func toSlogLevel(level LogLevel) slog.Level {
	if l, ok := slogLevels[level]; ok {
		return l
	}
	return slog.LevelInfo
}

// logAt is a no-op until Init has run
func logAt(level slog.Level, msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Log(context.Background(), level, msg, args...)
	}
}

func Debug(msg string, args ...any) { logAt(slog.LevelDebug, msg, args...) }
func Info(msg string, args ...any)  { logAt(slog.LevelInfo, msg, args...) }
func Warn(msg string, args ...any)  { logAt(slog.LevelWarn, msg, args...) }
func Error(msg string, args ...any) { logAt(slog.LevelError, msg, args...) }

func current() *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger
	}
	return slog.Default()
}

// With returns a new logger with the given attributes
func With(args ...any) *slog.Logger { return current().With(args...) }

// WithGroup returns a new logger with the given group
func WithGroup(name string) *slog.Logger { return current().WithGroup(name) }

// ForRun is the logger of one compilation run
func ForRun(runID string) *slog.Logger { return With("run", runID) }

// Compiler-specific logging helpers

// LogPhase logs the start of a compilation phase
func LogPhase(phase string) {
	Info("Starting compilation phase", "phase", phase)
}

// LogPhaseComplete logs the completion of a compilation phase
func LogPhaseComplete(phase string) {
	Info("Completed compilation phase", "phase", phase)
}

// LogCompileStart logs the start of a compilation run
func LogCompileStart(runID string, sections int) {
	if defaultLogger != nil {
		ForRun(runID).Info("Formula compilation starting", "sections", sections)
	}
}

// LogCompileComplete logs the end of a compilation run
func LogCompileComplete(runID string, success bool, duration string) {
	if defaultLogger == nil {
		return
	}
	if success {
		ForRun(runID).Info("Compilation successful", "duration", duration)
	} else {
		ForRun(runID).Error("Compilation failed", "duration", duration)
	}
}

// LogUnit logs an assembled unit
func LogUnit(unit string, routines, fields int) {
	Debug("Unit assembled", "unit", unit, "routines", routines, "fields", fields)
}

// LogRoutine logs code generation of one routine
func LogRoutine(unit, routine string, instructionCount, locals int) {
	Debug("Code generation complete",
		"unit", unit,
		"routine", routine,
		"instructions", instructionCount,
		"locals", locals)
}

// LogHelper logs the extraction of a helper routine
func LogHelper(kind, routine string, closure []string) {
	Debug("Helper extracted", "kind", kind, "routine", routine, "closure", closure)
}

// LogOptimization logs optimization passes
func LogOptimization(pass string, changeCount int) {
	Info("Optimization pass complete", "pass", pass, "changes", changeCount)
}

// LogError logs a compilation error
func LogError(phase string, cell string, msg string) {
	Error("Compilation error",
		"phase", phase,
		"cell", cell,
		"message", msg)
}

// LogWarning logs a compilation warning
func LogWarning(phase string, routine string, pc int, msg string) {
	Warn("Compilation warning",
		"phase", phase,
		"routine", routine,
		"pc", pc,
		"message", msg)
}

// LogLinkingStart logs linker start
func LogLinkingStart(unitCount int) {
	Info("Starting linking", "units", unitCount)
}

// LogLinkingComplete logs linker completion
func LogLinkingComplete(root string, routines int) {
	Info("Linking complete", "root", root, "routines", routines)
}
