package logging

import "fmt"

// GooseLogger adapts a Logger to the migration runner's Printf/Fatalf logger.
// Fatalf logs at error level and does not exit; the runner returns the error.
type GooseLogger struct {
	Logger Logger
}

func (g GooseLogger) Printf(format string, v ...interface{}) {
	g.Logger.Debug(fmt.Sprintf(format, v...), F("component", "migrate"))
}

func (g GooseLogger) Fatalf(format string, v ...interface{}) {
	g.Logger.Error(fmt.Sprintf(format, v...), F("component", "migrate"))
}
