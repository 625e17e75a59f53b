package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
	"github.com/dl-alexandre/netdeploy/pkg/version"
)

func newTestClient(t *testing.T, h http.Handler, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:    srv.URL + "/api/v1/",
		SiteID:     "site-1",
		Token:      "tok-123",
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
		Timeout:    5 * time.Second,
	})
}

func stringBody(s string) BodyFunc {
	return func() (io.ReadCloser, int64, error) {
		return io.NopCloser(strings.NewReader(s)), int64(len(s)), nil
	}
}

func TestCreateDeploy_WireFormat(t *testing.T) {
	var got CreateDeployRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sites/site-1/deploys", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, version.Get().UserAgent(), r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"dep-1","required":["abc"],"state":"uploading","ignored":true}`)
	}), 0)

	d, err := c.CreateDeploy(context.Background(), NewRequestContext("site-1", types.RequestTypeNegotiate),
		CreateDeployRequest{Files: map[string]string{"a.txt": "abc"}, Draft: true})
	require.NoError(t, err)
	assert.Equal(t, "dep-1", d.ID)
	assert.Equal(t, []string{"abc"}, d.Required)
	assert.Equal(t, map[string]string{"a.txt": "abc"}, got.Files)
	assert.True(t, got.Draft)
}

func TestCreateDeploy_NotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"message":"maintenance"}`)
	}), 3)

	_, err := c.CreateDeploy(context.Background(), NewRequestContext("site-1", types.RequestTypeNegotiate), CreateDeployRequest{})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.StatusCode(err))

	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "maintenance", appErr.CLIError.Message)
}

func TestCreateDeploy_RequiresSiteID(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	_, err := c.CreateDeploy(context.Background(), NewRequestContext("", types.RequestTypeNegotiate), CreateDeployRequest{})
	var appErr *utils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, utils.ErrCodeInvalidArgument, appErr.CLIError.Code)
}

func TestUploadFile_WireFormat(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/deploys/dep-1/files/dir/my file.txt", r.URL.Path)
		assert.Equal(t, "/api/v1/deploys/dep-1/files/dir/my%20file.txt", r.URL.EscapedPath())
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Equal(t, version.Get().UserAgent(), r.Header.Get("User-Agent"))
		assert.EqualValues(t, 5, r.ContentLength)
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", string(b))
		w.WriteHeader(http.StatusOK)
	}), 0)

	err := c.UploadFile(context.Background(), NewRequestContext("site-1", types.RequestTypeUpload), "dep-1", "dir/my file.txt", stringBody("hello"))
	require.NoError(t, err)
}

func TestUploadFile_RetriesTransientFailures(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", string(b), "every attempt must resend the full body")
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}), 3)

	err := c.UploadFile(context.Background(), NewRequestContext("site-1", types.RequestTypeUpload), "dep-1", "a.txt", stringBody("hello"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestUploadFile_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}), 2)

	err := c.UploadFile(context.Background(), NewRequestContext("site-1", types.RequestTypeUpload), "dep-1", "a.txt", stringBody("x"))
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
}

func TestUploadFile_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}), 3)

	err := c.UploadFile(context.Background(), NewRequestContext("site-1", types.RequestTypeUpload), "dep-1", "a.txt", stringBody("x"))
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestUploadFile_BodyOpenFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}), 3)
	boom := errors.New("gone")
	err := c.UploadFile(context.Background(), NewRequestContext("site-1", types.RequestTypeUpload), "dep-1", "a.txt",
		func() (io.ReadCloser, int64, error) { return nil, 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestUploadFile_ContextCanceled(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.UploadFile(ctx, NewRequestContext("site-1", types.RequestTypeUpload), "dep-1", "a.txt", stringBody("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "a/b%20c/d%3Fe.txt", EscapePath("a/b c/d?e.txt"))
	assert.Equal(t, "index.html", EscapePath("/index.html"))
}

func TestNewRequestContext(t *testing.T) {
	a := NewRequestContext("s", types.RequestTypeUpload)
	b := NewRequestContext("s", types.RequestTypeUpload)
	assert.NotEmpty(t, a.TraceID)
	assert.NotEqual(t, a.TraceID, b.TraceID)
	assert.Equal(t, "s", a.SiteID)
}
