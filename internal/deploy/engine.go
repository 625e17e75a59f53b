// Package deploy runs the content-addressed deploy pipeline: scan the tree,
// index digests, negotiate the manifest, upload what the service lacks.
package deploy

import (
	"context"
	"errors"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/dl-alexandre/netdeploy/internal/api"
	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
	"github.com/dl-alexandre/netdeploy/internal/deploy/exclude"
	"github.com/dl-alexandre/netdeploy/internal/deploy/executor"
	"github.com/dl-alexandre/netdeploy/internal/deploy/negotiator"
	"github.com/dl-alexandre/netdeploy/internal/deploy/scanner"
	"github.com/dl-alexandre/netdeploy/internal/deploy/state"
	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/types"
)

// Service is the Deploy Service as the pipeline needs it.
type Service interface {
	negotiator.Service
	executor.Uploader
}

var _ Service = (*api.Client)(nil)

type Engine struct {
	svc    Service
	db     *state.DB
	logger logging.Logger
}

type Options struct {
	Root           string
	SiteID         string
	Draft          bool
	DryRun         bool
	Concurrency    int
	Algorithm      digest.Algorithm
	Exclude        []string
	CommonExcludes bool
	Symlinks       scanner.SymlinkPolicy
	// UseCache reuses digests from the previous scan of Root when size and
	// mtime match. The cache is refreshed after every scan either way.
	UseCache bool

	OnStateChange func(from, to State)
	OnRequired    func(deployID string, jobs []executor.Job)
	OnUploaded    func(executor.Job)
}

// Plan is the local half of a deploy: everything known before talking to
// the service.
type Plan struct {
	Root     string
	Entries  []scanner.FileEntry
	Index    *digest.Index
	Manifest negotiator.Manifest
	fs       billy.Filesystem
}

// Result describes a run. It is filled in as far as the run got, even on
// failure; State is Failed then and FailedIn names the phase that failed.
type Result struct {
	DeployID        string        `json:"deployId,omitempty" yaml:"deployId,omitempty"`
	DeployURL       string        `json:"deployUrl,omitempty" yaml:"deployUrl,omitempty"`
	Root            string        `json:"root" yaml:"root"`
	Draft           bool          `json:"draft" yaml:"draft"`
	State           State         `json:"state" yaml:"state"`
	FailedIn        State         `json:"failedIn,omitempty" yaml:"failedIn,omitempty"`
	Files           int           `json:"files" yaml:"files"`
	DistinctDigests int           `json:"distinctDigests" yaml:"distinctDigests"`
	CachedDigests   int           `json:"cachedDigests" yaml:"cachedDigests"`
	Required        int           `json:"required" yaml:"required"`
	Duplicates      int           `json:"duplicateRequired,omitempty" yaml:"duplicateRequired,omitempty"`
	Uploaded        int           `json:"uploaded" yaml:"uploaded"`
	Duration        time.Duration `json:"durationNs" yaml:"durationNs"`
}

// NewEngine wires the pipeline. db may be nil, which disables the digest
// cache and deploy history.
func NewEngine(svc Service, db *state.DB, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Engine{svc: svc, db: db, logger: logger}
}

func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Plan scans opts.Root and builds the digest index and manifest.
func (e *Engine) Plan(ctx context.Context, opts Options) (*Plan, error) {
	log := e.logger.WithContext(ctx)

	matcher, err := exclude.New(opts.Exclude, opts.CommonExcludes)
	if err != nil {
		return nil, &apperrors.ScanError{Err: err}
	}
	alg := opts.Algorithm
	if alg == "" {
		alg = digest.DefaultAlgorithm
	}
	root, err := scanner.ResolveRoot(opts.Root)
	if err != nil {
		return nil, err
	}
	var cache map[string]scanner.Cached
	if opts.UseCache {
		cache = e.loadCache(ctx, root)
	}
	sc, err := scanner.New(root, scanner.Options{
		Algorithm: alg,
		Matcher:   matcher,
		Symlinks:  opts.Symlinks,
		Cache:     cache,
	})
	if err != nil {
		return nil, err
	}

	scanStart := time.Now()
	entries, err := sc.Scan(ctx)
	if err != nil {
		return nil, err
	}
	idx := scanner.BuildIndex(entries)
	for _, en := range entries {
		log.Debug("File digest", logging.F("path", en.RelativePath), logging.F("digest", en.Digest))
	}
	e.storeCache(ctx, sc.Root(), alg, entries, scanStart)

	return &Plan{
		Root:     sc.Root(),
		Entries:  entries,
		Index:    idx,
		Manifest: negotiator.NewManifest(idx, alg, opts.Draft),
		fs:       sc.Filesystem(),
	}, nil
}

// Run executes the whole pipeline and records the outcome in the history.
func (e *Engine) Run(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	reqCtx := api.NewRequestContext(opts.SiteID, types.RequestTypeNegotiate)
	ctx = logging.ContextWithTraceID(ctx, reqCtx.TraceID)
	log := e.logger.WithTraceID(reqCtx.TraceID)

	m := newMachine(func(from, to State) {
		log.Info("Pipeline state", logging.F("from", from), logging.F("state", to))
		if opts.OnStateChange != nil {
			opts.OnStateChange(from, to)
		}
	})
	res := Result{Root: opts.Root, Draft: opts.Draft, State: StateScanning}

	err := e.run(ctx, reqCtx, opts, m, &res)
	if err != nil {
		m.fail()
		log.Error("Deploy failed",
			logging.F("phase", m.failedIn),
			logging.F("error", err.Error()),
		)
	}
	res.State = m.current
	res.FailedIn = m.failedIn
	res.Duration = time.Since(start)

	if !opts.DryRun {
		e.recordHistory(ctx, opts, res, err, start)
	}
	return res, err
}

func (e *Engine) run(ctx context.Context, reqCtx *types.RequestContext, opts Options, m *machine, res *Result) error {
	plan, err := e.Plan(ctx, opts)
	if err != nil {
		return err
	}
	res.Root = plan.Root
	res.Files = plan.Index.Len()
	res.DistinctDigests = plan.Index.DistinctDigests()
	for _, en := range plan.Entries {
		if en.FromCache {
			res.CachedDigests++
		}
	}
	if err := m.to(StateIndexed); err != nil {
		return err
	}
	if opts.DryRun {
		return nil
	}

	if err := m.to(StateNegotiating); err != nil {
		return err
	}
	resp, err := negotiator.New(e.svc, e.logger).Negotiate(ctx, reqCtx, plan.Manifest)
	if err != nil {
		return err
	}
	res.DeployID = resp.DeployID
	res.DeployURL = resp.DeployURL
	if err := m.to(StateAwaitingUploads); err != nil {
		return err
	}

	jobs, dups, err := executor.Plan(resp.DeployID, resp.Required, plan.Index)
	res.Duplicates = dups
	if err != nil {
		return err
	}
	res.Required = len(jobs)
	if opts.OnRequired != nil {
		opts.OnRequired(resp.DeployID, jobs)
	}
	if err := m.to(StateUploading); err != nil {
		return err
	}

	uploadCtx := &types.RequestContext{TraceID: reqCtx.TraceID, SiteID: reqCtx.SiteID, RequestType: types.RequestTypeUpload}
	summary, err := executor.New(plan.fs, e.svc, e.logger).Run(ctx, uploadCtx, jobs, executor.Options{
		Concurrency: opts.Concurrency,
		OnUploaded:  opts.OnUploaded,
	})
	res.Uploaded = summary.Uploaded
	if err != nil {
		return err
	}
	return m.to(StateComplete)
}

func (e *Engine) loadCache(ctx context.Context, root string) map[string]scanner.Cached {
	if e.db == nil {
		return nil
	}
	rows, err := e.db.ListCache(ctx, root)
	if err != nil {
		e.logger.Warn("Digest cache unavailable", logging.F("error", err.Error()))
		return nil
	}
	out := make(map[string]scanner.Cached, len(rows))
	for rel, r := range rows {
		out[rel] = scanner.Cached{
			Size:      r.Size,
			ModTime:   r.ModTimeNs,
			Algorithm: digest.Algorithm(r.Algorithm),
			Digest:    r.Digest,
		}
	}
	return out
}

func (e *Engine) storeCache(ctx context.Context, root string, alg digest.Algorithm, entries []scanner.FileEntry, scanStart time.Time) {
	if e.db == nil {
		return
	}
	rows := make([]state.CacheEntry, 0, len(entries))
	for _, en := range entries {
		if !scanner.Cacheable(en, scanStart) {
			continue
		}
		rows = append(rows, state.CacheEntry{
			Root:         root,
			RelativePath: en.RelativePath,
			Size:         en.Size,
			ModTimeNs:    en.ModTime,
			Algorithm:    string(alg),
			Digest:       en.Digest,
		})
	}
	if err := e.db.ReplaceCache(ctx, root, rows); err != nil {
		e.logger.Warn("Digest cache not saved", logging.F("error", err.Error()))
	}
}

func (e *Engine) recordHistory(ctx context.Context, opts Options, res Result, runErr error, start time.Time) {
	if e.db == nil {
		return
	}
	rec := state.DeployRecord{
		DeployID:        res.DeployID,
		SiteID:          opts.SiteID,
		Root:            res.Root,
		Draft:           opts.Draft,
		Files:           res.Files,
		DistinctDigests: res.DistinctDigests,
		Required:        res.Required,
		Uploaded:        res.Uploaded,
		State:           string(res.State),
		StartedAt:       start,
		FinishedAt:      start.Add(res.Duration),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	// History must survive a canceled run.
	if errors.Is(ctx.Err(), context.Canceled) {
		ctx = context.WithoutCancel(ctx)
	}
	if _, err := e.db.InsertDeploy(ctx, rec); err != nil {
		e.logger.Warn("Deploy history not saved", logging.F("error", err.Error()))
	}
}
