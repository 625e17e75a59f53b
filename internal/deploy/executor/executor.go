// Package executor uploads the file contents a deploy still requires.
package executor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dl-alexandre/netdeploy/internal/api"
	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

// Uploader sends one file body. *api.Client implements it.
type Uploader interface {
	UploadFile(ctx context.Context, reqCtx *types.RequestContext, deployID, relPath string, body api.BodyFunc) error
}

// Job is one upload: the representative path of a required digest.
type Job struct {
	DeployID     string
	Digest       string
	RelativePath string
}

type Options struct {
	// Concurrency bounds in-flight uploads; 1 uploads strictly in order.
	Concurrency int
	// OnUploaded is called after each successful upload from the worker
	// goroutines, one call at a time.
	OnUploaded func(Job)
}

type Summary struct {
	Required   int
	Duplicates int
	Uploaded   int
	Duration   time.Duration
}

type Executor struct {
	fs     billy.Filesystem
	up     Uploader
	logger logging.Logger
}

// New reads file contents from fsys, the filesystem the index was built from.
func New(fsys billy.Filesystem, up Uploader, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Executor{fs: fsys, up: up, logger: logger}
}

// Plan resolves every required digest to its representative path before any
// upload starts, so an unknown digest fails the deploy with nothing sent.
// A digest listed twice is planned once, at its first position.
func Plan(deployID string, required []string, idx *digest.Index) ([]Job, int, error) {
	jobs := make([]Job, 0, len(required))
	seen := make(map[string]struct{}, len(required))
	dups := 0
	for _, d := range required {
		if _, ok := seen[d]; ok {
			dups++
			continue
		}
		seen[d] = struct{}{}
		p, err := idx.PathFor(d)
		if err != nil {
			return nil, dups, &apperrors.InconsistentManifestError{DeployID: deployID, Digest: d}
		}
		jobs = append(jobs, Job{DeployID: deployID, Digest: d, RelativePath: p})
	}
	return jobs, dups, nil
}

// Run uploads jobs with at most opts.Concurrency in flight. The first
// failure cancels the rest and is returned as an UploadError; no new upload
// starts after it.
func (e *Executor) Run(ctx context.Context, reqCtx *types.RequestContext, jobs []Job, opts Options) (Summary, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = utils.DefaultConcurrency
	}
	log := e.logger.WithTraceID(reqCtx.TraceID)
	start := time.Now()
	var uploaded atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var notify sync.Mutex
	dispatched := 0
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := e.upload(gctx, reqCtx, job); err != nil {
				log.Error("Upload failed",
					logging.F("path", job.RelativePath),
					logging.F("digest", job.Digest),
					logging.F("error", err.Error()),
				)
				return &apperrors.UploadError{
					Path:   job.RelativePath,
					Digest: job.Digest,
					Status: apperrors.StatusCode(err),
					Err:    err,
				}
			}
			uploaded.Add(1)
			log.Debug("Uploaded file",
				logging.F("path", job.RelativePath),
				logging.F("digest", job.Digest),
			)
			if opts.OnUploaded != nil {
				notify.Lock()
				opts.OnUploaded(job)
				notify.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	summary := Summary{
		Required: len(jobs),
		Uploaded: int(uploaded.Load()),
		Duration: time.Since(start),
	}
	if err == nil && dispatched < len(jobs) {
		err = ctx.Err()
	}
	return summary, err
}

func (e *Executor) upload(ctx context.Context, reqCtx *types.RequestContext, job Job) error {
	body := func() (io.ReadCloser, int64, error) {
		info, err := e.fs.Stat(job.RelativePath)
		if err != nil {
			return nil, 0, err
		}
		f, err := e.fs.Open(job.RelativePath)
		if err != nil {
			return nil, 0, err
		}
		return f, info.Size(), nil
	}
	return e.up.UploadFile(ctx, reqCtx, job.DeployID, job.RelativePath, body)
}
