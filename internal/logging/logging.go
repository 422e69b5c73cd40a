// Package logging provides the categorized logging facade for swarmgov.
// Each subsystem logs through its own category so that a single noisy
// component can be silenced without losing the rest of the trace.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryOrchestrator Category = "orchestrator" // Task routing, façade operations
	CategoryAgent        Category = "agent"        // Ledger mutations, role handlers
	CategoryDAO          Category = "dao"          // Proposal lifecycle, voting
	CategoryTrust        Category = "trust"        // Trust graph entries, corroboration
	CategoryContext      Category = "context"      // Context window assembly
	CategoryPipeline     Category = "pipeline"     // Task pipeline transitions
	CategoryLLM          Category = "llm"          // Generation calls and retries
	CategoryStore        Category = "store"        // Persistence
)

// Logger is a category-scoped logger. It wraps a zap sugared logger so the
// rest of the codebase never touches zap directly.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	loggers = make(map[Category]*Logger)
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize installs the given zap logger as the backing logger for all
// categories. Safe to call more than once; later calls replace the backend.
func Initialize(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	loggers = make(map[Category]*Logger)
}

// SetDebug toggles debug-level output for every category.
func SetDebug(enabled bool) {
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	backing := base
	if backing == nil {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		backing, _ = cfg.Build()
		base = backing
	}
	l := &Logger{
		category: cat,
		sugar:    backing.Sugar().Named(string(cat)),
	}
	loggers[cat] = l
	return l
}

// Debug logs a debug message with printf-style formatting.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message with printf-style formatting.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning with printf-style formatting.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error with printf-style formatting.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key/value context, used to thread
// correlation ids through multi-step operations.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(args...)}
}

// Timer measures the duration of an operation.
type Timer struct {
	logger *Logger
	name   string
	start  time.Time
}

// StartTimer begins timing an operation in a category.
func StartTimer(cat Category, name string) *Timer {
	return &Timer{logger: Get(cat), name: name, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns the duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("%s took %s", t.name, elapsed)
	return elapsed
}
