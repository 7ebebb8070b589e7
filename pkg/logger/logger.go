package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogMode selects the output format and verbosity of the global logger.
type LogMode string

const (
	LogModeDebug  LogMode = "debug"
	LogModePretty LogMode = "pretty"
	LogModeInfo   LogMode = "info"
	LogModeProd   LogMode = "prod"
	LogModeTest   LogMode = "test"
)

var log = zerolog.Nop()

// ParseMode maps a --log flag value to a LogMode, falling back to pretty.
func ParseMode(s string) LogMode {
	switch LogMode(s) {
	case LogModeDebug, LogModePretty, LogModeInfo, LogModeProd, LogModeTest:
		return LogMode(s)
	default:
		return LogModePretty
	}
}

// Init configures the global logger with the pretty console writer.
func Init() {
	InitWithMode(LogModePretty)
}

// InitWithMode configures the global logger for the given mode.
func InitWithMode(mode LogMode) {
	InitWithWriter(mode, os.Stdout)
}

// InitWithWriter is InitWithMode with an explicit destination.
func InitWithWriter(mode LogMode, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	switch mode {
	case LogModeTest:
		zerolog.SetGlobalLevel(zerolog.Disabled)
		log = zerolog.New(io.Discard)
	case LogModeProd:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log = zerolog.New(out).With().Timestamp().Logger()
	case LogModeInfo:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log = zerolog.New(consoleWriter(out)).With().Timestamp().Logger()
	case LogModeDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log = zerolog.New(consoleWriter(out)).With().Timestamp().Caller().Logger()
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log = zerolog.New(consoleWriter(out)).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &log
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			return colorizeLevel(s)
		},
		FormatMessage: func(i interface{}) string {
			s, _ := i.(string)
			return colorize(s, cyan)
		},
		FormatFieldName: func(i interface{}) string {
			s, _ := i.(string)
			return colorize(s+":", gray)
		},
		FormatFieldValue: func(i interface{}) string {
			// Handle different types of field values
			switch v := i.(type) {
			case string:
				return colorize(v, blue)
			case json.Number:
				return colorize(v.String(), blue)
			default:
				return colorize(fmt.Sprint(v), blue)
			}
		},
	}
}

// ANSI color codes
const (
	gray  = "\x1b[37m"
	blue  = "\x1b[34m"
	cyan  = "\x1b[36m"
	red   = "\x1b[31m"
	green = "\x1b[32m"
	reset = "\x1b[0m"
)

func colorize(s, color string) string {
	return color + s + reset
}

func colorizeLevel(level string) string {
	switch level {
	case "debug":
		return colorize("DBG", gray)
	case "info":
		return colorize("INF", green)
	case "warn":
		return colorize("WRN", cyan)
	case "error":
		return colorize("ERR", red)
	case "fatal":
		return colorize("FTL", red)
	default:
		return colorize(level, blue)
	}
}

// Get returns the logger instance
func Get() zerolog.Logger {
	return log
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Error logs an error message
func Error(err error, msg string) {
	log.Error().Err(err).Msg(msg)
}

// Info logs an info message
func Info(msg string) {
	log.Info().Msg(msg)
}

// Debug logs a debug message
func Debug(msg string) {
	log.Debug().Msg(msg)
}
