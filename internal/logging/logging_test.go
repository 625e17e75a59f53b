package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()
	if config.Level != INFO {
		t.Errorf("Level = %v, want INFO", config.Level)
	}
	if !config.EnableConsole || !config.RedactSensitive {
		t.Errorf("console and redaction should be on by default: %+v", config)
	}
	if config.MaxFileSize != 100*1024*1024 {
		t.Errorf("MaxFileSize = %d", config.MaxFileSize)
	}
}

func TestNewLogger_SinkSelection(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		config LogConfig
		want   string
	}{
		{"console", LogConfig{EnableConsole: true}, "*logging.ConsoleLogger"},
		{"file", LogConfig{OutputFile: filepath.Join(dir, "a.log")}, "*logging.FileLogger"},
		{"both", LogConfig{EnableConsole: true, OutputFile: filepath.Join(dir, "b.log")}, "*logging.MultiLogger"},
		{"none", LogConfig{}, "*logging.NoOpLogger"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			t.Cleanup(func() { _ = logger.Close() })
			if got := typeName(logger); got != tt.want {
				t.Errorf("NewLogger() = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case *ConsoleLogger:
		return "*logging.ConsoleLogger"
	case *FileLogger:
		return "*logging.FileLogger"
	case *MultiLogger:
		return "*logging.MultiLogger"
	case *NoOpLogger:
		return "*logging.NoOpLogger"
	}
	return "unknown"
}

func TestNewDebugLoggerWithTransport(t *testing.T) {
	logger, transport, err := NewDebugLoggerWithTransport(LogConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if transport != nil {
		t.Error("transport should be nil when debug is off")
	}
	_ = logger.Close()

	logger, transport, err = NewDebugLoggerWithTransport(LogConfig{EnableDebug: true})
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()
	if transport == nil {
		t.Fatal("expected a debug transport")
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": DEBUG, "INFO": INFO, "": INFO, "warning": WARN, "error": ERROR} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) should fail")
	}
}

func TestConsoleLogger_LevelFilterAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: WARN})
	l.Info("hidden")
	l.Warn("uploaded", F("path", "a.txt"), F("status", 500))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "WARN  uploaded path=a.txt, status=500") {
		t.Errorf("unexpected format: %q", out)
	}
}

func TestConsoleLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG, RedactSensitive: true})
	l.Info("sending Authorization: Bearer nfp_abc123", F("header", "Bearer nfp_abc123"))
	if strings.Contains(buf.String(), "nfp_abc123") {
		t.Errorf("token leaked: %q", buf.String())
	}
}

func TestConsoleLogger_TraceID(t *testing.T) {
	var buf bytes.Buffer
	base := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: INFO})
	ctx := ContextWithTraceID(context.Background(), "0123456789abcdef")
	base.WithContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "[01234567] hello") {
		t.Errorf("trace id missing: %q", buf.String())
	}
	if base.WithContext(context.Background()) != Logger(base) {
		t.Error("WithContext without trace id should return the same logger")
	}
}

func TestMultiLogger_FanOutAndClose(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMultiLogger(
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &a, Level: INFO}),
		NewConsoleLogger(ConsoleLoggerConfig{Writer: &b, Level: INFO}),
	)
	m.WithTraceID("trace-1234").Error("boom")
	if a.String() == "" || a.String() != b.String() {
		t.Errorf("outputs differ: %q vs %q", a.String(), b.String())
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFileLogger_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "netdeploy.log")
	fl, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: DEBUG, RedactSensitive: true})
	if err != nil {
		t.Fatal(err)
	}
	fl.WithTraceID("abc").Info("negotiated", F("required", 2), F("err", errors.New("x")), F("auth", "Bearer secret"))
	if err := fl.Close(); err != nil {
		t.Fatal(err)
	}
	fl.Info("after close is dropped")

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var lines []LogEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	e := lines[0]
	if e.Level != "INFO" || e.TraceID != "abc" || e.Message != "negotiated" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Fields["required"] != float64(2) || e.Fields["err"] != "x" {
		t.Errorf("unexpected fields %+v", e.Fields)
	}
	if strings.Contains(e.Fields["auth"].(string), "secret") {
		t.Error("token leaked into file log")
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.log")
	fl, err := NewFileLogger(FileLoggerConfig{FilePath: path, Level: INFO, MaxFileSize: 64, RotateEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	defer fl.Close()
	for i := 0; i < 4; i++ {
		fl.Info(strings.Repeat("x", 80))
	}
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 {
		t.Error("expected at least one rotated file")
	}
}

func TestDebugTransport_DoesNotLogCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := NewConsoleLogger(ConsoleLoggerConfig{Writer: &buf, Level: DEBUG})
	client := &http.Client{Transport: NewDebugTransport(nil, logger)}

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/deploys/d1/files/a.txt", nil)
	req.Header.Set("Authorization", "Bearer super-secret")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	out := buf.String()
	if strings.Contains(out, "super-secret") {
		t.Errorf("credential leaked: %q", out)
	}
	if !strings.Contains(out, "status=202") {
		t.Errorf("response not logged: %q", out)
	}
}
