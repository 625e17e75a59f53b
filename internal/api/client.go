package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"

	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
	"github.com/dl-alexandre/netdeploy/pkg/version"
)

const serviceName = "deploy-service"

var userAgent = version.Get().UserAgent()

// Client talks to the Deploy Service with retry logic and request shaping.
type Client struct {
	http       *http.Client
	baseURL    string
	siteID     string
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	logger     logging.Logger
}

// Options configures NewClient. Zero values fall back to the package defaults.
type Options struct {
	BaseURL    string
	SiteID     string
	Token      string
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	// Transport sits under the bearer-token layer, e.g. a logging.DebugTransport.
	Transport http.RoundTripper
	Logger    logging.Logger
}

func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = utils.DefaultAPIBase
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = utils.DefaultRetryDelayMs * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = utils.DefaultRequestTimeoutSeconds * time.Second
	}
	maxDelay := utils.MaxRetryDelayMs * time.Millisecond
	if opts.RetryDelay > maxDelay {
		maxDelay = opts.RetryDelay
	}
	return &Client{
		http:       NewHTTPClient(opts.Token, opts.Timeout, opts.Transport),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		siteID:     opts.SiteID,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		maxDelay:   maxDelay,
		logger:     opts.Logger,
	}
}

// NewHTTPClient returns a client that sends token as a bearer credential on
// every request and gives up after timeout.
func NewHTTPClient(token string, timeout time.Duration, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		}
	}
	return &http.Client{Transport: rt, Timeout: timeout}
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(siteID string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		TraceID:     uuid.New().String(),
		SiteID:      siteID,
		RequestType: requestType,
	}
}

// backoff is exponential from retryDelay with ±25% jitter, capped at
// maxDelay. A Retry-After hint from the last response replaces the next step.
func (c *Client) backoff(hint *time.Duration) retry.Backoff {
	base := retry.NewExponential(c.retryDelay)
	base = retry.WithJitterPercent(25, base)
	base = retry.WithCappedDuration(c.maxDelay, base)
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := base.Next()
		if stop {
			return 0, true
		}
		if *hint > 0 {
			next = min(*hint, c.maxDelay)
			*hint = 0
		}
		return next, false
	})
	return retry.WithMaxRetries(uint64(c.maxRetries), b)
}

// ExecuteWithRetry runs fn until it succeeds, fails with a non-retryable
// error, or the retry budget is spent. Failures come back classified as
// *utils.AppError with the original error reachable through Unwrap.
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func(context.Context) (T, error)) (T, error) {
	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("siteId", reqCtx.SiteID),
	)

	var (
		result   T
		attempts int
		hint     time.Duration
	)
	start := time.Now()
	err := retry.Do(ctx, client.backoff(&hint), func(ctx context.Context) error {
		attempts++
		var err error
		result, err = fn(ctx)
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		var se *apperrors.HTTPStatusError
		if errors.As(err, &se) {
			hint = se.RetryAfter
		}
		logger.Warn("API operation failed (retryable)",
			logging.F("attempt", attempts),
			logging.F("maxRetries", client.maxRetries),
			logging.F("error", err.Error()),
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		logger.Error("API operation failed",
			logging.F("duration_ms", time.Since(start).Milliseconds()),
			logging.F("attempts", attempts),
			logging.F("error", err.Error()),
		)
		var zero T
		return zero, apperrors.ClassifyHTTPError(serviceName, err, reqCtx, client.logger)
	}

	logger.Debug("API operation completed",
		logging.F("duration_ms", time.Since(start).Milliseconds()),
		logging.F("attempts", attempts),
	)
	return result, nil
}
