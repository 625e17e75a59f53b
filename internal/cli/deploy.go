package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/netdeploy/internal/deploy"
	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/types"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a directory",
	Long: `Hash every file under --path, negotiate the manifest with the deploy
service and upload only the content it does not already have.

Deploys are drafts unless --prod is given. --dry-run stops after hashing and
prints the manifest without contacting the service.`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

var (
	deployFlags  pipelineFlags
	deployDryRun bool
)

func init() {
	registerPipelineFlags(deployCmd, &deployFlags, true)
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "Hash and print the manifest without deploying")
	rootCmd.AddCommand(deployCmd)
}

// registerPipelineFlags binds the flags shared by deploy, scan and watch.
func registerPipelineFlags(cmd *cobra.Command, p *pipelineFlags, remote bool) {
	f := cmd.Flags()
	f.StringVarP(&p.path, "path", "p", ".", "Directory to deploy")
	f.StringSliceVar(&p.exclude, "exclude", nil, "Exclude patterns (dir/, *.glob, exact name)")
	f.BoolVar(&p.commonExcludes, "common-excludes", false, "Also exclude VCS directories, editor files and secrets")
	f.BoolVar(&p.cache, "cache", false, "Reuse digests of files whose size and mtime are unchanged")
	f.BoolVar(&p.noCache, "no-cache", false, "Rehash every file even if digest_cache is enabled")
	f.StringVar(&p.digest, "digest", "", "Digest algorithm (sha1, sha256)")
	f.StringVar(&p.symlinks, "symlinks", "", "Symlink policy (error, skip)")
	if remote {
		f.BoolVar(&p.prod, "prod", false, "Publish as a production deploy instead of a draft")
		f.IntVarP(&p.concurrency, "concurrency", "c", 0, "Parallel uploads (default from config)")
	}
}

func runDeploy(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	opts, err := deployFlags.options(appConfig)
	if err != nil {
		return out.Fail("deploy", err)
	}

	if deployDryRun {
		engine, err := openEngine(ctx, nil)
		if err != nil {
			return out.Fail("deploy", err)
		}
		defer engine.Close()

		plan, err := engine.Plan(ctx, opts)
		if err != nil {
			return out.Fail("deploy", err)
		}
		return out.WriteSuccess("deploy", newManifestView(plan, opts.Draft))
	}

	client, err := newDeployClient(appConfig)
	if err != nil {
		return out.Fail("deploy", err)
	}
	engine, err := openEngine(ctx, client)
	if err != nil {
		return out.Fail("deploy", err)
	}
	defer engine.Close()

	ui := newProgressUI(out)
	opts.OnStateChange = ui.state
	opts.OnRequired = ui.required
	opts.OnUploaded = ui.uploaded

	ui.begin()
	res, err := engine.Run(ctx, opts)
	ui.finish()

	view := deployResult(res)
	if err != nil {
		return out.WriteErrorWithData("deploy", view, apperrors.ToCLIError(err))
	}
	if res.DeployURL != "" {
		out.Log("Deployed to %s", res.DeployURL)
	}
	return out.WriteSuccess("deploy", view)
}

type deployResult deploy.Result

func (r deployResult) AsTableRenderer() types.TableRenderer {
	rows := [][]string{
		{"State", string(r.State)},
	}
	if r.FailedIn != "" {
		rows = append(rows, []string{"Failed in", string(r.FailedIn)})
	}
	if r.DeployID != "" {
		rows = append(rows, []string{"Deploy ID", r.DeployID})
	}
	if r.DeployURL != "" {
		rows = append(rows, []string{"URL", r.DeployURL})
	}
	kind := "draft"
	if !r.Draft {
		kind = "production"
	}
	rows = append(rows,
		[]string{"Kind", kind},
		[]string{"Files", strconv.Itoa(r.Files)},
		[]string{"Distinct digests", strconv.Itoa(r.DistinctDigests)},
		[]string{"Cached digests", strconv.Itoa(r.CachedDigests)},
		[]string{"Required", strconv.Itoa(r.Required)},
		[]string{"Uploaded", fmt.Sprintf("%d/%d", r.Uploaded, r.Required)},
		[]string{"Duration", r.Duration.Round(time.Millisecond).String()},
	)
	return staticTable{headers: []string{"Deploy", ""}, rows: rows}
}

// manifestView is the dry-run output: the manifest that would be offered.
type manifestView struct {
	Root            string            `json:"root" yaml:"root"`
	Draft           bool              `json:"draft" yaml:"draft"`
	Files           map[string]string `json:"files" yaml:"files"`
	DistinctDigests int               `json:"distinctDigests" yaml:"distinctDigests"`
	paths           []string
}

func newManifestView(plan *deploy.Plan, draft bool) manifestView {
	return manifestView{
		Root:            plan.Root,
		Draft:           draft,
		Files:           plan.Manifest.Files(),
		DistinctDigests: plan.Index.DistinctDigests(),
		paths:           plan.Manifest.Paths(),
	}
}

func (m manifestView) AsTableRenderer() types.TableRenderer {
	rows := make([][]string, 0, len(m.paths))
	for _, p := range m.paths {
		rows = append(rows, []string{p, m.Files[p]})
	}
	return staticTable{
		headers: []string{"Path", "Digest"},
		rows:    rows,
		empty:   "No files to deploy.",
	}
}

type staticTable struct {
	headers []string
	rows    [][]string
	empty   string
}

func (t staticTable) Headers() []string { return t.headers }
func (t staticTable) Rows() [][]string  { return t.rows }
func (t staticTable) EmptyMessage() string {
	if t.empty == "" {
		return "Nothing to show."
	}
	return t.empty
}
