// Package negotiator submits a deploy manifest and learns which digests the
// Deploy Service still needs.
package negotiator

import (
	"context"
	"fmt"
	"sort"

	"github.com/dl-alexandre/netdeploy/internal/api"
	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/types"
)

// Service creates deploys. *api.Client implements it.
type Service interface {
	CreateDeploy(ctx context.Context, reqCtx *types.RequestContext, req api.CreateDeployRequest) (*api.Deploy, error)
}

// Manifest is the immutable set of path → digest pairs offered to the service.
type Manifest struct {
	files     map[string]string
	algorithm digest.Algorithm
	draft     bool
}

// NewManifest snapshots idx, whose digests were computed with alg. Later
// changes to idx do not affect the manifest.
func NewManifest(idx *digest.Index, alg digest.Algorithm, draft bool) Manifest {
	if alg == "" {
		alg = digest.DefaultAlgorithm
	}
	return Manifest{files: idx.Files(), algorithm: alg, draft: draft}
}

func (m Manifest) Draft() bool { return m.draft }

func (m Manifest) Algorithm() digest.Algorithm {
	if m.algorithm == "" {
		return digest.DefaultAlgorithm
	}
	return m.algorithm
}
func (m Manifest) Len() int    { return len(m.files) }

// Files returns a copy of the manifest entries.
func (m Manifest) Files() map[string]string {
	out := make(map[string]string, len(m.files))
	for p, d := range m.files {
		out[p] = d
	}
	return out
}

// Paths returns the manifest paths sorted.
func (m Manifest) Paths() []string {
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Response is the service's answer: the deploy to upload into and the
// digests it lacks, in the order it listed them.
type Response struct {
	DeployID  string
	Required  []string
	State     string
	DeployURL string
}

type Negotiator struct {
	svc    Service
	logger logging.Logger
}

func New(svc Service, logger logging.Logger) *Negotiator {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Negotiator{svc: svc, logger: logger}
}

// Negotiate sends the manifest once. Any transport failure, non-2xx status,
// response without a deploy ID, or required digest that is not a well-formed
// digest of the manifest's algorithm fails with a NegotiationError.
func (n *Negotiator) Negotiate(ctx context.Context, reqCtx *types.RequestContext, m Manifest) (Response, error) {
	log := n.logger.WithTraceID(reqCtx.TraceID)
	log.Info("Negotiating deploy",
		logging.F("files", m.Len()),
		logging.F("draft", m.Draft()),
	)

	d, err := n.svc.CreateDeploy(ctx, reqCtx, api.CreateDeployRequest{Files: m.Files(), Draft: m.Draft()})
	if err != nil {
		return Response{}, &apperrors.NegotiationError{Status: apperrors.StatusCode(err), Err: err}
	}
	if d == nil || d.ID == "" {
		return Response{}, &apperrors.NegotiationError{Detail: "response has no deploy id"}
	}

	alg := m.Algorithm()
	for _, req := range d.Required {
		if !alg.Valid(req) {
			return Response{}, &apperrors.NegotiationError{
				Detail: fmt.Sprintf("deploy %s requires malformed %s digest %q", d.ID, alg, req),
			}
		}
	}

	resp := Response{
		DeployID:  d.ID,
		Required:  append([]string(nil), d.Required...),
		State:     d.State,
		DeployURL: d.DeployURL,
	}
	log.Info("Files needed to be uploaded",
		logging.F("deployId", resp.DeployID),
		logging.F("required", len(resp.Required)),
	)
	return resp, nil
}
