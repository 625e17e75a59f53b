package cli

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/netdeploy/internal/api"
	"github.com/dl-alexandre/netdeploy/internal/auth"
	"github.com/dl-alexandre/netdeploy/internal/config"
	"github.com/dl-alexandre/netdeploy/internal/deploy"
	"github.com/dl-alexandre/netdeploy/internal/deploy/digest"
	"github.com/dl-alexandre/netdeploy/internal/deploy/scanner"
	"github.com/dl-alexandre/netdeploy/internal/deploy/state"
	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

func newAuthManager() (*auth.Manager, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(dir), nil
}

// newDeployClient builds a Deploy Service client from the effective
// configuration and the resolved bearer credential.
func newDeployClient(cfg *config.Config) (*api.Client, error) {
	if cfg.SiteID == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"No site configured. Pass --site-id or set "+utils.EnvSiteID+".").Build())
	}

	mgr, err := newAuthManager()
	if err != nil {
		return nil, err
	}
	token, err := mgr.ResolveToken(globalFlags.Token, globalFlags.Profile)
	if err != nil {
		return nil, err
	}
	logger.Debug("Resolved credentials", logging.F("source", token.Source))

	opts := api.Options{
		BaseURL:    cfg.APIBase,
		SiteID:     cfg.SiteID,
		Token:      token.Token,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.GetRetryBaseDelay(),
		Timeout:    cfg.GetRequestTimeout(),
		Logger:     logger,
	}
	if debugTransport != nil {
		opts.Transport = debugTransport
	}
	return api.NewClient(opts), nil
}

// openEngine opens the local state database and wires the pipeline. svc may
// be nil for commands that only scan.
func openEngine(ctx context.Context, svc deploy.Service) (*deploy.Engine, error) {
	path, err := config.GetStatePath()
	if err != nil {
		return nil, err
	}
	db, err := state.Open(ctx, path, logger)
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}
	return deploy.NewEngine(svc, db, logger), nil
}

// pipelineFlags are the flags shared by deploy, scan and watch.
type pipelineFlags struct {
	path           string
	prod           bool
	concurrency    int
	exclude        []string
	commonExcludes bool
	cache          bool
	noCache        bool
	digest         string
	symlinks       string
}

func (p *pipelineFlags) options(cfg *config.Config) (deploy.Options, error) {
	opts := deploy.Options{
		Root:           p.path,
		SiteID:         cfg.SiteID,
		Draft:          !p.prod,
		Concurrency:    cfg.Concurrency,
		Algorithm:      cfg.Algorithm(),
		Exclude:        append(append([]string{}, cfg.Exclude...), p.exclude...),
		CommonExcludes: cfg.CommonExcludes || p.commonExcludes,
		Symlinks:       cfg.SymlinkPolicy(),
		UseCache:       (cfg.DigestCache || p.cache) && !p.noCache,
	}
	if p.concurrency != 0 {
		if p.concurrency < 1 || p.concurrency > utils.MaxConcurrency {
			return opts, invalidArgument(fmt.Sprintf("--concurrency must be between 1 and %d", utils.MaxConcurrency))
		}
		opts.Concurrency = p.concurrency
	}
	if p.digest != "" {
		alg, err := digest.ParseAlgorithm(p.digest)
		if err != nil {
			return opts, invalidArgument(err.Error())
		}
		opts.Algorithm = alg
	}
	if p.symlinks != "" {
		policy, err := scanner.ParseSymlinkPolicy(p.symlinks)
		if err != nil {
			return opts, invalidArgument(err.Error())
		}
		opts.Symlinks = policy
	}
	return opts, nil
}

func invalidArgument(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, msg).Build())
}
