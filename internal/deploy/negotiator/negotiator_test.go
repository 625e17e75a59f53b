package negotiator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl-alexandre/netdeploy/internal/api"
	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/types"
)

type stubService struct {
	got    api.CreateDeployRequest
	deploy *api.Deploy
	err    error
}

func (s *stubService) CreateDeploy(_ context.Context, _ *types.RequestContext, req api.CreateDeployRequest) (*api.Deploy, error) {
	s.got = req
	return s.deploy, s.err
}

func testIndex() *digest.Index {
	idx := digest.NewIndex()
	idx.Insert("a.txt", digest.SHA1.Sum([]byte("hello")))
	idx.Insert("b.txt", digest.SHA1.Sum([]byte("world")))
	return idx
}

func reqCtx() *types.RequestContext {
	return api.NewRequestContext("site", types.RequestTypeNegotiate)
}

func TestManifest_IsASnapshot(t *testing.T) {
	idx := testIndex()
	m := NewManifest(idx, digest.SHA1, true)
	idx.Insert("c.txt", "later")

	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Draft())
	assert.Equal(t, digest.SHA1, m.Algorithm())
	assert.Equal(t, []string{"a.txt", "b.txt"}, m.Paths())

	files := m.Files()
	files["a.txt"] = "mutated"
	assert.Equal(t, digest.SHA1.Sum([]byte("hello")), m.Files()["a.txt"])
}

func TestNegotiate_SendsManifestAndReturnsRequired(t *testing.T) {
	x, y := digest.SHA1.Sum([]byte("x")), digest.SHA1.Sum([]byte("y"))
	svc := &stubService{deploy: &api.Deploy{ID: "d1", Required: []string{x, y}}}
	n := New(svc, nil)

	resp, err := n.Negotiate(context.Background(), reqCtx(), NewManifest(testIndex(), digest.SHA1, false))
	require.NoError(t, err)
	assert.Equal(t, "d1", resp.DeployID)
	assert.Equal(t, []string{x, y}, resp.Required)
	assert.False(t, svc.got.Draft)
	assert.Equal(t, testIndex().Files(), svc.got.Files)
}

func TestNegotiate_EmptyManifestStillNegotiates(t *testing.T) {
	svc := &stubService{deploy: &api.Deploy{ID: "d0"}}
	resp, err := New(svc, nil).Negotiate(context.Background(), reqCtx(), NewManifest(digest.NewIndex(), "", true))
	require.NoError(t, err)
	assert.Empty(t, resp.Required)
	assert.NotNil(t, svc.got.Files)
	assert.Empty(t, svc.got.Files)
}

func TestNegotiate_Failures(t *testing.T) {
	tests := []struct {
		name string
		svc  *stubService
	}{
		{"transport", &stubService{err: errors.New("connection refused")}},
		{"missing id", &stubService{deploy: &api.Deploy{Required: []string{"x"}}}},
		{"nil deploy", &stubService{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.svc, nil).Negotiate(context.Background(), reqCtx(), NewManifest(testIndex(), digest.SHA1, true))
			assert.ErrorIs(t, err, apperrors.ErrNegotiationFailed)
		})
	}
}

func TestNegotiate_HTTPStatusThroughClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not authorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	client := api.NewClient(api.Options{BaseURL: srv.URL, SiteID: "site", RetryDelay: time.Millisecond})

	_, err := New(client, nil).Negotiate(context.Background(), reqCtx(), NewManifest(testIndex(), digest.SHA1, true))
	require.ErrorIs(t, err, apperrors.ErrNegotiationFailed)
	var ne *apperrors.NegotiationError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, http.StatusUnauthorized, ne.Status)
	assert.Contains(t, err.Error(), "Not authorized")
}

func TestNegotiate_MalformedRequiredDigest(t *testing.T) {
	tests := []struct {
		name     string
		alg      digest.Algorithm
		required string
	}{
		{"too short", digest.SHA1, "abc123"},
		{"uppercase", digest.SHA1, strings.ToUpper(digest.SHA1.Sum([]byte("x")))},
		{"sha1 length under sha256", digest.SHA256, digest.SHA1.Sum([]byte("x"))},
		{"not hex", digest.SHA1, strings.Repeat("z", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{deploy: &api.Deploy{ID: "d1", Required: []string{tt.required}}}
			_, err := New(svc, nil).Negotiate(context.Background(), reqCtx(), NewManifest(testIndex(), tt.alg, true))
			require.ErrorIs(t, err, apperrors.ErrNegotiationFailed)
			var ne *apperrors.NegotiationError
			require.ErrorAs(t, err, &ne)
			assert.Contains(t, ne.Detail, "malformed")
			assert.Contains(t, ne.Detail, tt.required)
		})
	}
}
