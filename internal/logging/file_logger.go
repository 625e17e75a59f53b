package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileSink is shared by a FileLogger and every trace-scoped copy of it.
type fileSink struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
	rotate  bool
	level   LogLevel
	redact  bool
	closed  bool
}

// FileLogger appends JSON lines to a file and rotates it by size.
type FileLogger struct {
	sink    *fileSink
	traceID string
}

// FileLoggerConfig configures NewFileLogger. MaxFileSize of 0 disables rotation.
type FileLoggerConfig struct {
	FilePath        string
	Level           LogLevel
	MaxFileSize     int64
	RotateEnabled   bool
	RedactSensitive bool
}

func openAppend(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, size, err := openAppend(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileLogger{sink: &fileSink{
		file:    f,
		path:    config.FilePath,
		size:    size,
		maxSize: config.MaxFileSize,
		rotate:  config.RotateEnabled && config.MaxFileSize > 0,
		level:   config.Level,
		redact:  config.RedactSensitive,
	}}, nil
}

// rotateLocked renames the current file with a UTC timestamp suffix and
// starts a fresh one. Caller holds s.mu.
func (s *fileSink) rotateLocked() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	rotated := s.path + "." + time.Now().UTC().Format("20060102-150405.000")
	renameErr := os.Rename(s.path, rotated)

	f, size, err := openAppend(s.path)
	if err != nil {
		return fmt.Errorf("reopen log file: %w", err)
	}
	s.file, s.size = f, size
	if renameErr != nil {
		return fmt.Errorf("rename log file: %w", renameErr)
	}
	return nil
}

func (l *FileLogger) log(level LogLevel, msg string, fields []Field) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || level < s.level {
		return
	}

	if s.rotate && s.size >= s.maxSize {
		if err := s.rotateLocked(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	if s.redact {
		msg = Redact(msg)
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		TraceID:   l.traceID,
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields))
		for _, f := range fields {
			v := f.Value
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			if str, ok := v.(string); ok && s.redact {
				v = Redact(str)
			}
			entry.Fields[f.Key] = v
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log marshal failed: %v\n", err)
		return
	}
	n, err := s.file.Write(append(line, '\n'))
	s.size += int64(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log write failed: %v\n", err)
	}
}

func (l *FileLogger) Debug(msg string, fields ...Field) { l.log(DEBUG, msg, fields) }
func (l *FileLogger) Info(msg string, fields ...Field)  { l.log(INFO, msg, fields) }
func (l *FileLogger) Warn(msg string, fields ...Field)  { l.log(WARN, msg, fields) }
func (l *FileLogger) Error(msg string, fields ...Field) { l.log(ERROR, msg, fields) }

func (l *FileLogger) WithTraceID(traceID string) Logger {
	return &FileLogger{sink: l.sink, traceID: traceID}
}

func (l *FileLogger) WithContext(ctx context.Context) Logger {
	if id := TraceIDFromContext(ctx); id != "" {
		return l.WithTraceID(id)
	}
	return l
}

func (l *FileLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Close closes the underlying file; trace-scoped copies stop writing too.
func (l *FileLogger) Close() error {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
