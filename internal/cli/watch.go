package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/netdeploy/internal/deploy/exclude"
	"github.com/dl-alexandre/netdeploy/internal/logging"
	"github.com/dl-alexandre/netdeploy/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Deploy a directory and redeploy on every change",
	Long: `Deploy --path once, then watch it and deploy again whenever files change.
Changes are batched until the tree has been quiet for --debounce. A failed
deploy is logged and watching continues. Interrupt to stop.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchFlags    pipelineFlags
	watchDebounce time.Duration
)

func init() {
	registerPipelineFlags(watchCmd, &watchFlags, true)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before redeploying")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	opts, err := watchFlags.options(appConfig)
	if err != nil {
		return out.Fail("watch", err)
	}
	matcher, err := exclude.New(opts.Exclude, opts.CommonExcludes)
	if err != nil {
		return out.Fail("watch", invalidArgument(err.Error()))
	}
	client, err := newDeployClient(appConfig)
	if err != nil {
		return out.Fail("watch", err)
	}
	engine, err := openEngine(ctx, client)
	if err != nil {
		return out.Fail("watch", err)
	}
	defer engine.Close()

	w, err := watch.New(opts.Root, watch.Options{Matcher: matcher, Debounce: watchDebounce, Logger: logger})
	if err != nil {
		return out.Fail("watch", invalidArgument(err.Error()))
	}
	defer w.Close()

	var runs, failures int
	deployOnce := func(ctx context.Context) {
		runs++
		res, err := engine.Run(ctx, opts)
		if err != nil {
			failures++
			logger.Error("Deploy failed, still watching",
				logging.F("state", res.FailedIn),
				logging.F("error", err.Error()),
			)
			out.Log("Deploy failed in %s: %v", res.FailedIn, err)
			return
		}
		out.Log("Deployed %s: %d uploaded of %d files", res.DeployID, res.Uploaded, res.Files)
	}

	deployOnce(ctx)
	out.Log("Watching %s for changes", w.Root())
	err = w.Run(ctx, func(ctx context.Context, changed []string) {
		logger.Info("Redeploying", logging.F("changed", len(changed)))
		deployOnce(ctx)
	})
	if err != nil {
		return out.Fail("watch", err)
	}

	return out.WriteSuccess("watch", map[string]string{
		"root":     w.Root(),
		"deploys":  strconv.Itoa(runs),
		"failures": strconv.Itoa(failures),
	})
}
