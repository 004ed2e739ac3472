package logger

import (
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// String returns the upper-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// traceLevel sits below zap's debug level; zap has no trace of its own.
const traceLevel = zapcore.DebugLevel - 1

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case TRACE:
		return traceLevel
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Component represents the logging component
type Component string

const (
	ComponentApp    Component = "app"
	ComponentWAF    Component = "waf"
	ComponentClient Component = "client"
	ComponentSite   Component = "site"
	ComponentNotify Component = "notify"
	ComponentJSVM   Component = "jsvm"
	ComponentConfig Component = "config"
)

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	ShowCaller bool
	Timestamp  bool
	// File, when set, receives a JSON copy of every entry through a rotating writer.
	File     string
	Rotation *RotationConfig
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  INFO,
		Format: FormatText,
		Output: os.Stdout,
		Components: map[Component]bool{
			ComponentApp:    true,
			ComponentWAF:    true,
			ComponentClient: false,
			ComponentSite:   true,
			ComponentNotify: true,
			ComponentJSVM:   false,
			ComponentConfig: false,
		},
		ShowCaller: false,
		Timestamp:  false,
	}
}

// Logger provides structured logging functionality
type Logger struct {
	config *Config
	zl     *zap.Logger
	mu     sync.RWMutex
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Components == nil {
		config.Components = make(map[Component]bool)
	}
	l := &Logger{config: config}
	l.zl = build(config)
	return l
}

// build assembles the zap core tree for a configuration.
func build(cfg *Config) *zap.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	// Filtering happens in Logger.log, so the cores accept everything.
	all := zap.LevelEnablerFunc(func(zapcore.Level) bool { return true })

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(cfg, cfg.Format), zapcore.AddSync(out), all),
	}
	if cfg.File != "" {
		cores = append(cores, zapcore.NewCore(
			newEncoder(cfg, FormatJSON),
			zapcore.AddSync(newFileWriter(cfg.File, cfg.Rotation)),
			all,
		))
	}

	var opts []zap.Option
	if cfg.ShowCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(3))
	}
	return zap.New(zapcore.NewTee(cores...), opts...)
}

func newEncoder(cfg *Config, format Format) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.LevelKey = "level"
	ec.NameKey = "component"
	ec.MessageKey = "message"
	ec.StacktraceKey = zapcore.OmitKey
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	if !cfg.Timestamp {
		ec.TimeKey = zapcore.OmitKey
	}
	if !cfg.ShowCaller {
		ec.CallerKey = zapcore.OmitKey
	}

	switch format {
	case FormatJSON:
		ec.EncodeLevel = levelEncoder(false)
		return zapcore.NewJSONEncoder(ec)
	case FormatColor:
		ec.EncodeLevel = levelEncoder(true)
		ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("\033[36m[" + name + "]\033[0m")
		}
		return zapcore.NewConsoleEncoder(ec)
	default:
		ec.EncodeLevel = levelEncoder(false)
		ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + name + "]")
		}
		return zapcore.NewConsoleEncoder(ec)
	}
}

// levelEncoder renders levels with this package's names, including TRACE.
func levelEncoder(color bool) zapcore.LevelEncoder {
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		name := level.CapitalString()
		var l Level
		switch level {
		case traceLevel:
			name, l = "TRACE", TRACE
		case zapcore.DebugLevel:
			l = DEBUG
		case zapcore.InfoLevel:
			l = INFO
		case zapcore.WarnLevel:
			l = WARN
		default:
			l = ERROR
		}
		if color {
			enc.AppendString(getLevelColor(l) + name + "\033[0m")
			return
		}
		enc.AppendString(name)
	}
}

// getLevelColor returns color code for log level
func getLevelColor(level Level) string {
	switch level {
	case TRACE:
		return "\033[37m" // White
	case DEBUG:
		return "\033[94m" // Blue
	case INFO:
		return "\033[92m" // Green
	case WARN:
		return "\033[93m" // Yellow
	case ERROR:
		return "\033[91m" // Red
	default:
		return "\033[0m" // Reset
	}
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{
		logger:    l,
		component: component,
	}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Format = format
	l.zl = build(l.config)
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
	l.zl = build(l.config)
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = true
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = false
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zl.Sync()
}

// log writes a log entry
func (l *Logger) log(level Level, component Component, message string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level < l.config.Level {
		return
	}
	if !l.config.Components[component] {
		return
	}

	ce := l.zl.Named(string(component)).Check(level.zapLevel(), message)
	if ce == nil {
		return
	}
	ce.Write(toFields(fields)...)
}

// toFields converts a field map into zap fields in key order.
func toFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...map[string]interface{}) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...map[string]interface{}) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...map[string]interface{}) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...map[string]interface{}) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...map[string]interface{}) {
	cl.log(ERROR, message, fields...)
}

// log writes a log entry for the component
func (cl *ComponentLogger) log(level Level, message string, fields ...map[string]interface{}) {
	var mergedFields map[string]interface{}
	if len(fields) > 0 {
		mergedFields = fields[0]
	}
	cl.logger.log(level, cl.component, message, mergedFields)
}

var globalLogger atomic.Pointer[Logger]

func init() {
	globalLogger.Store(New(DefaultConfig()))
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	if logger == nil {
		return
	}
	globalLogger.Store(logger)
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger.Load()
}

// WithComponent returns a component logger from global logger
func WithComponent(component Component) *ComponentLogger {
	return globalLogger.Load().WithComponent(component)
}
