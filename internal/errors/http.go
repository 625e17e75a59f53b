package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

// HTTPStatusError is returned by the API client for any non-2xx response.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if d := e.Detail(); d != "" {
		msg += ": " + d
	}
	return msg
}

// Detail prefers the service's JSON "message" field over the raw body.
func (e *HTTPStatusError) Detail() string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(e.Body)
}

// ParseRetryAfter reads a delay-seconds Retry-After header. HTTP dates are ignored.
func ParseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// StatusCode extracts the HTTP status from anywhere in err's chain, or 0.
func StatusCode(err error) int {
	var se *HTTPStatusError
	if stderrors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsRetryable reports whether repeating the same request may succeed:
// 429, 5xx and transport failures. Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	var se *HTTPStatusError
	if stderrors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne)
}

// ClassifyHTTPError maps a Deploy Service failure onto a stable CLI error code.
func ClassifyHTTPError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var traceID string
	if reqCtx != nil {
		traceID = reqCtx.TraceID
	}

	var se *HTTPStatusError
	if !stderrors.As(err, &se) {
		code := utils.ErrCodeNetworkError
		switch {
		case stderrors.Is(err, context.Canceled):
			code = utils.ErrCodeCancelled
		case stderrors.Is(err, context.DeadlineExceeded):
			code = utils.ErrCodeTimeout
		}
		logger.Error("Deploy Service request failed",
			logging.F("error", err.Error()),
			logging.F("errorCode", code),
			logging.F("traceId", traceID),
			logging.F("service", service),
		)
		return utils.WrapAppError(utils.NewCLIError(code, err.Error()).
			WithRetryable(IsRetryable(err)).
			WithContext("traceId", traceID).
			WithContext("service", service).
			Build(), err)
	}

	var code string
	switch {
	case se.StatusCode == http.StatusUnauthorized:
		code = utils.ErrCodeAuthRequired
	case se.StatusCode == http.StatusForbidden:
		code = utils.ErrCodePermissionDenied
	case se.StatusCode == http.StatusNotFound:
		code = utils.ErrCodeNotFound
	case se.StatusCode == http.StatusTooManyRequests:
		code = utils.ErrCodeRateLimited
	case se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusGatewayTimeout:
		code = utils.ErrCodeTimeout
	case se.StatusCode >= 500:
		code = utils.ErrCodeServiceError
	case se.StatusCode >= 400:
		code = utils.ErrCodeInvalidArgument
	default:
		code = utils.ErrCodeUnknown
	}
	retryable := IsRetryable(se)

	logger.Error("Deploy Service error classified",
		logging.F("httpStatus", se.StatusCode),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("detail", se.Detail()),
		logging.F("traceId", traceID),
		logging.F("service", service),
	)

	msg := se.Detail()
	if msg == "" {
		msg = http.StatusText(se.StatusCode)
	}
	return utils.WrapAppError(utils.NewCLIError(code, msg).
		WithHTTPStatus(se.StatusCode).
		WithRetryable(retryable).
		WithContext("traceId", traceID).
		WithContext("service", service).
		WithContext("method", se.Method).
		WithContext("url", se.URL).
		Build(), err)
}
