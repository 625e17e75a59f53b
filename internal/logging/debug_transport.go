package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs each Deploy Service round trip. Credentials never reach
// the log: only method, URL, status, content length and duration are recorded.
type DebugTransport struct {
	Base   http.RoundTripper
	Logger Logger
}

func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{Base: base, Logger: logger}
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	log := t.Logger.WithContext(req.Context())
	start := time.Now()
	log.Debug("http request",
		F("method", req.Method),
		F("url", req.URL.Redacted()),
		F("content_length", req.ContentLength),
		F("authorization", authSummary(req.Header.Get("Authorization"))),
	)

	resp, err := t.Base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Debug("http transport error",
			F("method", req.Method),
			F("url", req.URL.Redacted()),
			F("duration_ms", elapsed.Milliseconds()),
			F("error", err.Error()),
		)
		return nil, err
	}

	log.Debug("http response",
		F("method", req.Method),
		F("url", req.URL.Redacted()),
		F("status", resp.StatusCode),
		F("duration_ms", elapsed.Milliseconds()),
	)
	return resp, nil
}

func authSummary(h string) string {
	if h == "" {
		return "none"
	}
	return "[REDACTED]"
}
