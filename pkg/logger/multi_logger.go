package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryUpdate   LogCategory = "update"   // update run stages (JSON)
	CategoryDownload LogCategory = "download" // download task events (JSON)
	CategoryError    LogCategory = "error"    // application errors (JSON)
)

// Categories lists every category written by MultiLogger
var Categories = []LogCategory{CategoryUpdate, CategoryDownload, CategoryError}

// ParseCategory validates a category name
func ParseCategory(s string) (LogCategory, error) {
	for _, c := range Categories {
		if string(c) == strings.ToLower(s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown log category: %s", s)
}

// MultiLogger writes each category to its own daily JSON file
type MultiLogger struct {
	config      MultiLoggerConfig
	level       zapcore.Level
	mu          sync.RWMutex
	loggers     map[LogCategory]*categoryLogger
	currentDate string
	now         func() time.Time
}

type categoryLogger struct {
	logger *zap.Logger
	core   zapcore.Core
	file   *os.File
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates the logs directory and opens today's category files
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	ml := &MultiLogger{
		config: config,
		level:  level,
		now:    time.Now,
	}
	if err := ml.open(ml.now().Format(dateLayout)); err != nil {
		return nil, err
	}
	return ml, nil
}

const dateLayout = "20060102"

// open replaces the category loggers with ones writing to the files of date
func (ml *MultiLogger) open(date string) error {
	loggers := make(map[LogCategory]*categoryLogger, len(Categories))
	for _, category := range Categories {
		level := ml.level
		if category == CategoryError {
			level = zapcore.ErrorLevel
		}
		cl, err := ml.createCategoryLogger(category, date, level)
		if err != nil {
			for _, opened := range loggers {
				opened.file.Close()
			}
			return fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		loggers[category] = cl
	}

	old := ml.loggers
	ml.loggers = loggers
	ml.currentDate = date
	for _, cl := range old {
		cl.logger.Sync()
		cl.file.Close()
	}
	return nil
}

func (ml *MultiLogger) createCategoryLogger(category LogCategory, date string, level zapcore.Level) (*categoryLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.CallerKey = ""

	path := filepath.Join(ml.config.LogsDir, fmt.Sprintf("%s-%s.log", category, date))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level).
		With([]zap.Field{zap.String("category", string(category))})
	return &categoryLogger{logger: zap.New(core), core: core, file: file}, nil
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the logger of a category, moving to a new file when the date changed
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	return ml.category(category).logger
}

func (ml *MultiLogger) category(category LogCategory) *categoryLogger {
	today := ml.now().Format(dateLayout)

	ml.mu.RLock()
	current := ml.currentDate
	ml.mu.RUnlock()

	if today != current {
		ml.mu.Lock()
		if today != ml.currentDate {
			// keep writing to the old files if the new ones cannot be opened
			ml.open(today)
		}
		ml.mu.Unlock()
	}

	ml.mu.RLock()
	defer ml.mu.RUnlock()
	if cl, ok := ml.loggers[category]; ok {
		return cl
	}
	if cl, ok := ml.loggers[CategoryError]; ok {
		return cl
	}
	return &categoryLogger{logger: zap.NewNop(), core: zapcore.NewNopCore()}
}

// Update returns the update run logger
func (ml *MultiLogger) Update() *zap.Logger {
	return ml.GetLogger(CategoryUpdate)
}

// Download returns the download event logger
func (ml *MultiLogger) Download() *zap.Logger {
	return ml.GetLogger(CategoryDownload)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// Tee returns a logger writing to base and to the current file of a category
func (ml *MultiLogger) Tee(base *zap.Logger, category LogCategory) *zap.Logger {
	file := &rotatingCore{ml: ml, category: category}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, file)
	}))
}

// rotatingCore resolves the category core on every write so teed loggers follow date rotation
type rotatingCore struct {
	ml       *MultiLogger
	category LogCategory
	fields   []zapcore.Field
}

func (c *rotatingCore) current() zapcore.Core {
	core := c.ml.category(c.category).core
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}
	return core
}

func (c *rotatingCore) Enabled(level zapcore.Level) bool {
	return c.ml.category(c.category).core.Enabled(level)
}

func (c *rotatingCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &rotatingCore{ml: c.ml, category: c.category, fields: merged}
}

func (c *rotatingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *rotatingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.current().Write(ent, fields)
}

func (c *rotatingCore) Sync() error {
	return c.ml.category(c.category).core.Sync()
}

// LogAppError logs an application-level error
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogUpdateEvent logs an update run event
func (ml *MultiLogger) LogUpdateEvent(event string, fields ...zap.Field) {
	ml.Update().Info(event, fields...)
}

// LogDownloadEvent logs a download task event
func (ml *MultiLogger) LogDownloadEvent(event string, fields ...zap.Field) {
	ml.Download().Info(event, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var result error
	for category, cl := range ml.loggers {
		if err := cl.logger.Sync(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", category, err))
		}
	}
	return result
}

// Close flushes and closes every category file
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var result error
	for category, cl := range ml.loggers {
		cl.logger.Sync()
		if err := cl.file.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", category, err))
		}
	}
	ml.loggers = map[LogCategory]*categoryLogger{}
	return result
}
