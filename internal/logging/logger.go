// Package logging provides config-driven categorized file-based logging.
// Logs are written to <dir>/logs/ with a separate file per category.
// When debug mode is disabled the whole package is a silent no-op, so call
// sites never need to guard their logging.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies a pipeline subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, catalog load, vectorizer init
	CategoryPipeline Category = "pipeline" // Orchestrator decisions
	CategoryEngine   Category = "engine"   // Structured-output client, repair, fallback
	CategoryAPI      Category = "api"      // Raw LLM transport calls
	CategoryQuality  Category = "quality"  // Validator verdicts
	CategoryKNN      Category = "knn"      // Few-shot retrieval, filter relaxation
	CategoryCache    Category = "cache"    // Result cache hits, single-flight waits
	CategoryWizard   Category = "wizard"   // Session state machine
	CategoryHistory  Category = "history"  // History store reads/writes
	CategoryMetrics  Category = "metrics"  // Metrics row writes
)

// Settings controls the logging package. It mirrors config.LoggingConfig to
// avoid a circular import.
type Settings struct {
	DebugMode  bool            `json:"debug_mode"`
	Level      string          `json:"level"`
	JSONFormat bool            `json:"json_format"`
	Categories map[string]bool `json:"categories"`
}

// entry is the structured JSON form of one log line.
type entry struct {
	Timestamp int64                  `json:"ts"`
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger writes to one category file. The zero value is a no-op.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	settings  Settings
	setMu     sync.RWMutex
	logLevel  int
)

const (
	levelDebug = 0
	levelInfo  = 1
	levelWarn  = 2
	levelError = 3
)

// Initialize sets up the logging directory under dir (typically
// ~/.promptforge). A no-op when debug mode is off.
func Initialize(dir string, s Settings) error {
	if dir == "" {
		return fmt.Errorf("logging directory required")
	}

	setMu.Lock()
	settings = s
	switch s.Level {
	case "debug":
		logLevel = levelDebug
	case "warn", "warning":
		logLevel = levelWarn
	case "error":
		logLevel = levelError
	default:
		logLevel = levelInfo
	}
	setMu.Unlock()

	if !s.DebugMode {
		return nil
	}

	logsDir = filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== promptforge logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", s.Level)
	return nil
}

// IsDebugMode reports whether debug logging is enabled.
func IsDebugMode() bool {
	setMu.RLock()
	defer setMu.RUnlock()
	return settings.DebugMode
}

// IsCategoryEnabled reports whether a category is enabled.
func IsCategoryEnabled(category Category) bool {
	setMu.RLock()
	defer setMu.RUnlock()

	if !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category. Returns a no-op logger
// when the category is disabled or the package is uninitialized.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, tag, format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	setMu.RLock()
	jsonFmt := settings.JSONFormat
	min := logLevel
	setMu.RUnlock()
	if level < min {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if jsonFmt {
		e := entry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     tag,
			Message:   msg,
		}
		if data, err := json.Marshal(e); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s", tag, msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(levelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(levelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(levelWarn, "WARN", format, args...)
}

// Error logs at error level. Always written when the logger is live.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(levelError, "ERROR", format, args...)
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer measures one operation's duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold warns if the duration exceeds the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Pipeline logs to the pipeline category.
func Pipeline(format string, args ...interface{}) { Get(CategoryPipeline).Info(format, args...) }

// PipelineDebug logs debug to the pipeline category.
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }

// Engine logs to the engine category.
func Engine(format string, args ...interface{}) { Get(CategoryEngine).Info(format, args...) }

// EngineDebug logs debug to the engine category.
func EngineDebug(format string, args ...interface{}) { Get(CategoryEngine).Debug(format, args...) }

// API logs to the api category.
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// KNN logs to the knn category.
func KNN(format string, args ...interface{}) { Get(CategoryKNN).Info(format, args...) }

// Cache logs to the cache category.
func Cache(format string, args ...interface{}) { Get(CategoryCache).Info(format, args...) }

// CacheDebug logs debug to the cache category.
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }

// Wizard logs to the wizard category.
func Wizard(format string, args ...interface{}) { Get(CategoryWizard).Info(format, args...) }

// History logs to the history category.
func History(format string, args ...interface{}) { Get(CategoryHistory).Info(format, args...) }

// HistoryWarn logs a warning to the history category.
func HistoryWarn(format string, args ...interface{}) { Get(CategoryHistory).Warn(format, args...) }

// Metrics logs to the metrics category.
func Metrics(format string, args ...interface{}) { Get(CategoryMetrics).Info(format, args...) }

// Quality logs to the quality category.
func Quality(format string, args ...interface{}) { Get(CategoryQuality).Info(format, args...) }
