package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

// CreateDeployRequest is the manifest body of a deploy creation.
type CreateDeployRequest struct {
	Files map[string]string `json:"files"`
	Draft bool              `json:"draft"`
}

// Deploy is the subset of the service's deploy object the client uses.
type Deploy struct {
	ID        string   `json:"id"`
	State     string   `json:"state,omitempty"`
	Required  []string `json:"required"`
	DeployURL string   `json:"deploy_ssl_url,omitempty"`
}

// BodyFunc opens a fresh upload body and reports its length. It is called
// once per attempt so retries never resend a drained reader.
type BodyFunc func() (io.ReadCloser, int64, error)

// CreateDeploy posts the manifest for the client's site. It is attempted
// exactly once: repeating it would create a second deploy.
func (c *Client) CreateDeploy(ctx context.Context, reqCtx *types.RequestContext, req CreateDeployRequest) (*Deploy, error) {
	if c.siteID == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "site ID is required").Build())
	}
	if req.Files == nil {
		req.Files = map[string]string{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	endpoint := c.baseURL + "/sites/" + url.PathEscape(c.siteID) + "/deploys"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", utils.ContentTypeJSON)
	httpReq.Header.Set("Accept", utils.ContentTypeJSON)

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, apperrors.ClassifyHTTPError(serviceName, err, reqCtx, c.logger)
	}
	defer resp.Body.Close()

	var d Deploy
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode deploy response: %w", err)
	}
	return &d, nil
}

// UploadFile streams one file to deployID under relPath, retrying transient
// failures.
func (c *Client) UploadFile(ctx context.Context, reqCtx *types.RequestContext, deployID, relPath string, body BodyFunc) error {
	endpoint := c.baseURL + "/deploys/" + url.PathEscape(deployID) + "/files/" + EscapePath(relPath)
	_, err := ExecuteWithRetry(ctx, c, reqCtx, func(ctx context.Context) (struct{}, error) {
		rc, size, err := body()
		if err != nil {
			return struct{}{}, fmt.Errorf("open %s: %w", relPath, err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, rc)
		if err != nil {
			_ = rc.Close()
			return struct{}{}, err
		}
		httpReq.ContentLength = size
		httpReq.Header.Set("Content-Type", utils.ContentTypeOctetStream)

		resp, err := c.do(httpReq)
		if err != nil {
			return struct{}{}, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return struct{}{}, resp.Body.Close()
	})
	return err
}

// do sends req and turns any non-2xx answer into *errors.HTTPStatusError,
// keeping at most utils.MaxErrorBodyBytes of the body as detail.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, utils.MaxErrorBodyBytes))
	return nil, &apperrors.HTTPStatusError{
		Method:     req.Method,
		URL:        req.URL.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       string(detail),
		RetryAfter: apperrors.ParseRetryAfter(resp.Header),
	}
}

// EscapePath escapes each segment of a slash-separated relative path.
func EscapePath(rel string) string {
	segs := strings.Split(strings.TrimPrefix(rel, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
