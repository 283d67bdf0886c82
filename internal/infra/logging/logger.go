package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Log levels, re-exported so callers need not import log/slog.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

type (
	Logger  = *slog.Logger
	Handler = slog.Handler
	Level   = slog.Level
)

// LoggerNameKey is the attribute key carrying the logger name.
// The level filter matches it against the configured prefixes.
const LoggerNameKey = "logger"

// redactedValue replaces the value of any attribute named in redactedKeys.
const redactedValue = "[redacted]"

//nolint:gochecknoglobals
var redactedKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"access_token":  {},
	"signing_key":   {},
}

// LoggerConfig holds configuration parameters for logging.
type LoggerConfig struct {
	// AppName is added to every record as "app"
	AppName string

	// Output is where records go: "stdout", "stderr", "discard" or a file path
	Output string `env:"OUTPUT" default:"stderr"`

	// Level is the minimum level ("debug", "info", "warn", "error")
	Level string `env:"LEVEL" default:"info"`

	// Filter overrides the level per logger name prefix ("repo:warn,svc.authsvc:debug")
	Filter string `env:"FILTER" default:""`

	// JSON switches from console output to one JSON object per record
	JSON bool `env:"JSON" default:"false"`

	// OutputHandle, when set, takes precedence over Output
	OutputHandle io.Writer
}

//nolint:gochecknoglobals
var (
	Group = slog.Group

	active   loggerSetup
	activeMu sync.RWMutex
)

// loggerSetup is the resolved form of a LoggerConfig shared by all loggers.
type loggerSetup struct {
	cfg    LoggerConfig
	output io.Writer
	level  Level
	filter levelFilter
}

// Configure replaces the global logging setup. Loggers obtained from
// GetLogger before the call keep their previous setup.
// It panics if the configured log file cannot be opened.
func Configure(ctx context.Context, cfg LoggerConfig, appName string) {
	cfg.AppName = appName

	output, err := openOutput(cfg)
	if err != nil {
		panic(fmt.Errorf("configure logging: %w", err))
	}

	setup := loggerSetup{
		cfg:    cfg,
		output: output,
		level:  parseLogLevel(cfg.Level, LevelInfo),
		filter: parseLevelFilter(cfg.Filter),
	}

	activeMu.Lock()
	active = setup
	activeMu.Unlock()

	slog.SetLogLoggerLevel(setup.level)

	GetLogger("infra.logging").DebugContext(ctx, "logging configured", Group("config",
		"app", cfg.AppName,
		"output", cfg.Output,
		"level", cfg.Level,
		"filter", cfg.Filter,
		"json", cfg.JSON,
	))
}

func openOutput(cfg LoggerConfig) (io.Writer, error) {
	if cfg.OutputHandle != nil {
		return cfg.OutputHandle, nil
	}

	switch cfg.Output {
	case "", "discard":
		return io.Discard, nil
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// GetLogger returns a logger named name, such as "svc.authsvc.http".
// The name is attached as LoggerNameKey and selects the level from the filter.
func GetLogger(name string) Logger {
	activeMu.RLock()
	setup := active
	activeMu.RUnlock()

	if setup.output == nil || setup.output == io.Discard {
		return NewNopLogger()
	}

	// The format handler admits the most verbose filtered level; filterHandler
	// narrows it down per logger.
	floor := setup.filter.lowest(setup.level)

	var handler slog.Handler
	if setup.cfg.JSON {
		//nolint:exhaustruct
		handler = slog.NewJSONHandler(setup.output, &slog.HandlerOptions{
			AddSource:   true,
			Level:       floor,
			ReplaceAttr: redactAttr,
		})
	} else {
		handler = NewConsoleHandler(setup.output, floor)
	}

	handler = NewContextHandler(newFilterHandler(handler, setup.filter, setup.level))

	logger := slog.New(handler)
	if setup.cfg.AppName != "" {
		logger = logger.With("app", setup.cfg.AppName)
	}

	return logger.With(LoggerNameKey, name)
}

// GetLogLogger adapts logger for APIs that want a *log.Logger, such as http.Server.ErrorLog.
func GetLogLogger(logger Logger, level Level) *log.Logger {
	return slog.NewLogLogger(logger.With("stdlog", true).Handler(), level)
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(attr.Key)]; ok {
		return slog.String(attr.Key, redactedValue)
	}

	return attr
}

func parseLogLevel(levelStr string, fallback Level) Level {
	var level Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(levelStr))); err != nil {
		return fallback
	}

	return level
}
