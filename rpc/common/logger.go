package common

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// seedLogger implements the ILogger interface with custom formatting
type seedLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *seedLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *seedLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *seedLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *seedLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *seedLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *seedLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *seedLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements dragonboat's logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	return &seedLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: log.New(os.Stdout, "", log.Ldate|log.Ltime),
	}
}

// --------------------------------------------------------------------------
// Bridge for libraries logging through *log.Logger (memberlist)
// --------------------------------------------------------------------------

// levelWriter forwards lines of the form "[LEVEL] text" to an ILogger
type levelWriter struct {
	target logger.ILogger
}

func (w levelWriter) Write(p []byte) (int, error) {
	line := string(bytes.TrimSpace(p))
	level, msg := "INFO", line
	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "]"); end > 0 {
			level, msg = line[1:end], strings.TrimSpace(line[end+1:])
		}
	}

	switch level {
	case "DEBUG", "TRACE":
		w.target.Debugf("%s", msg)
	case "WARN", "WARNING":
		w.target.Warningf("%s", msg)
	case "ERR", "ERROR":
		w.target.Errorf("%s", msg)
	default:
		w.target.Infof("%s", msg)
	}
	return len(p), nil
}

// NewStdLogger returns a *log.Logger writing into the named logger. Level
// prefixes such as "[DEBUG]" are mapped onto the levels of the logger.
func NewStdLogger(name string) *log.Logger {
	return log.New(levelWriter{target: logger.GetLogger(name)}, "", 0)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// raftLoggers are the packages of dragonboat
var raftLoggers = []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb"}

// seedLoggers are the packages of SphagnumDB
var seedLoggers = []string{"store", "transport/rpc", "rpc", "rpc/client", "path", "seed", "serve"}

// InitLoggers installs the custom logger factory and sets the level of all loggers
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	// Set as the global logger factory for Dragonboat
	logger.SetLoggerFactory(CreateLogger)

	for _, name := range raftLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	for _, name := range seedLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
