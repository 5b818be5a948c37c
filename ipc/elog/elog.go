// Package elog is the ambient logging facade for the EE IPC driver. It
// registers a small logger.ILogger implementation with dragonboat's
// logger registry so every component gets a named, level-gated logger
// from logger.GetLogger without constructing its own.
package elog

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// eeipcLogger implements logger.ILogger with prefix-tagged, level-gated
// output to stdout.
type eeipcLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *eeipcLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *eeipcLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *eeipcLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *eeipcLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *eeipcLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *eeipcLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *eeipcLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-16s | %s", levelStr, l.name, message)
}

// CreateLogger is a logger.Factory usable with logger.SetLoggerFactory.
func CreateLogger(pkgName string) logger.ILogger {
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)
	return &eeipcLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// Subsystem names used across the driver. Components call
// logger.GetLogger(one of these) rather than constructing their own.
const (
	Transport  = "eeipc/transport"
	Supervisor = "eeipc/supervisor"
	Reply      = "eeipc/reply"
	Driver     = "eeipc/driver"
)

// ParseLevel converts a string level (as configured via the harness's
// --log-level flag or EEIPC_LOG_LEVEL) to logger.LogLevel.
func ParseLevel(level string) (logger.LogLevel, error) {
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
		return logger.INFO, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
	}
}

// Init registers the eeipc logger factory and sets the given level on
// every subsystem logger this driver uses.
func Init(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLoggerFactory(CreateLogger)
	for _, name := range []string{Transport, Supervisor, Reply, Driver} {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
