package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

func TestPipelineErrors_MatchSentinels(t *testing.T) {
	scan := &ScanError{Path: "a/b", Err: fs.ErrPermission}
	assert.ErrorIs(t, scan, ErrScan)
	assert.ErrorIs(t, scan, fs.ErrPermission)
	assert.NotErrorIs(t, scan, ErrUploadFailed)

	neg := fmt.Errorf("deploy: %w", &NegotiationError{Status: 422, Detail: "bad"})
	assert.ErrorIs(t, neg, ErrNegotiationFailed)

	inc := &InconsistentManifestError{DeployID: "d1", Digest: "zzz"}
	assert.ErrorIs(t, inc, ErrInconsistentManifest)
	assert.Contains(t, inc.Error(), "zzz")

	up := &UploadError{Path: "a.txt", Digest: "h", Status: 500, Err: stderrors.New("boom")}
	assert.ErrorIs(t, up, ErrUploadFailed)
	assert.Contains(t, up.Error(), "status 500")
}

func TestHTTPStatusError_Detail(t *testing.T) {
	e := &HTTPStatusError{Method: "POST", URL: "u", StatusCode: 422, Body: `{"code":422,"message":"Invalid filename"}`}
	assert.Equal(t, "Invalid filename", e.Detail())

	e = &HTTPStatusError{Method: "POST", URL: "u", StatusCode: 500, Body: " oops \n"}
	assert.Equal(t, "oops", e.Detail())
	assert.Contains(t, e.Error(), "500 Internal Server Error: oops")
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Zero(t, ParseRetryAfter(h))
	h.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, ParseRetryAfter(h))
	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	assert.Zero(t, ParseRetryAfter(h))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &HTTPStatusError{StatusCode: 429}, true},
		{"503", &HTTPStatusError{StatusCode: 503}, true},
		{"404", &HTTPStatusError{StatusCode: 404}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", stderrors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestClassifyHTTPError(t *testing.T) {
	reqCtx := &types.RequestContext{TraceID: "trace-1", RequestType: types.RequestTypeUpload}
	logger := logging.NewNoOpLogger()

	tests := []struct {
		status int
		code   string
	}{
		{401, utils.ErrCodeAuthRequired},
		{403, utils.ErrCodePermissionDenied},
		{404, utils.ErrCodeNotFound},
		{422, utils.ErrCodeInvalidArgument},
		{429, utils.ErrCodeRateLimited},
		{502, utils.ErrCodeServiceError},
		{504, utils.ErrCodeTimeout},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			src := &HTTPStatusError{Method: "PUT", URL: "/x", StatusCode: tt.status}
			err := ClassifyHTTPError("upload", src, reqCtx, logger)

			var appErr *utils.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.code, appErr.CLIError.Code)
			assert.Equal(t, tt.status, appErr.CLIError.HTTPStatus)
			assert.Equal(t, "trace-1", appErr.CLIError.Context["traceId"])
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}

	err := ClassifyHTTPError("upload", context.DeadlineExceeded, reqCtx, logger)
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, utils.ErrCodeTimeout, appErr.CLIError.Code)
	assert.True(t, appErr.CLIError.Retryable)
}

func TestToCLIError(t *testing.T) {
	classified := ClassifyHTTPError("negotiate", &HTTPStatusError{StatusCode: 401}, nil, logging.NewNoOpLogger())

	tests := []struct {
		name     string
		err      error
		code     string
		exitCode int
	}{
		{"scan", &ScanError{Path: "x", Err: fs.ErrNotExist}, utils.ErrCodeScanFailed, utils.ExitScanFailed},
		{"negotiation", &NegotiationError{Status: 401, Err: classified}, utils.ErrCodeNegotiationFailed, utils.ExitNegotiationFailed},
		{"inconsistent", &InconsistentManifestError{Digest: "d"}, utils.ErrCodeInconsistentManifest, utils.ExitInconsistentManifest},
		{"upload", &UploadError{Path: "p", Err: stderrors.New("x")}, utils.ErrCodeUploadFailed, utils.ExitUploadFailed},
		{"app", classified, utils.ErrCodeAuthRequired, utils.ExitAuthRequired},
		{"canceled", context.Canceled, utils.ErrCodeCancelled, utils.ExitCancelled},
		{"other", stderrors.New("?"), utils.ErrCodeUnknown, utils.ExitUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCLIError(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.exitCode, utils.GetExitCode(got.Code))
		})
	}

	neg := ToCLIError(&NegotiationError{Status: 401, Err: classified})
	assert.Equal(t, utils.ErrCodeAuthRequired, neg.Context["cause"])
}
