package logging

import (
	"fmt"
	"net/http"
)

// LogConfig selects and configures the sinks built by NewLogger.
type LogConfig struct {
	Level           LogLevel
	EnableConsole   bool
	OutputFile      string
	MaxFileSize     int64
	EnableDebug     bool
	RedactSensitive bool
	EnableColor     bool
	EnableTimestamp bool
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:           INFO,
		EnableConsole:   true,
		MaxFileSize:     100 * 1024 * 1024,
		RedactSensitive: true,
	}
}

// NewLogger returns a ConsoleLogger, FileLogger, MultiLogger or NoOpLogger
// depending on which sinks are enabled.
func NewLogger(config LogConfig) (Logger, error) {
	if config.EnableDebug {
		config.Level = DEBUG
	}

	var sinks []Logger
	if config.EnableConsole {
		sinks = append(sinks, NewConsoleLogger(ConsoleLoggerConfig{
			Level:            config.Level,
			ColorEnabled:     config.EnableColor,
			TimestampEnabled: config.EnableTimestamp,
			RedactSensitive:  config.RedactSensitive,
		}))
	}
	if config.OutputFile != "" {
		fl, err := NewFileLogger(FileLoggerConfig{
			FilePath:        config.OutputFile,
			Level:           config.Level,
			MaxFileSize:     config.MaxFileSize,
			RotateEnabled:   config.MaxFileSize > 0,
			RedactSensitive: config.RedactSensitive,
		})
		if err != nil {
			return nil, fmt.Errorf("file logger: %w", err)
		}
		sinks = append(sinks, fl)
	}

	switch len(sinks) {
	case 0:
		return NewNoOpLogger(), nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiLogger(sinks...), nil
	}
}

// NewDebugLoggerWithTransport builds the logger and, when debug is enabled,
// a DebugTransport over http.DefaultTransport that logs through it.
func NewDebugLoggerWithTransport(config LogConfig) (Logger, *DebugTransport, error) {
	logger, err := NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	if !config.EnableDebug {
		return logger, nil, nil
	}
	return logger, NewDebugTransport(http.DefaultTransport, logger), nil
}
