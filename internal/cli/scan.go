package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/netdeploy/internal/deploy"
	"github.com/dl-alexandre/netdeploy/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Print the digest index of a directory",
	Long:  "Walk --path and print every file with its content digest and size, as a deploy would see it",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

var scanFlags pipelineFlags

func init() {
	registerPipelineFlags(scanCmd, &scanFlags, false)
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	opts, err := scanFlags.options(appConfig)
	if err != nil {
		return out.Fail("scan", err)
	}
	engine, err := openEngine(ctx, nil)
	if err != nil {
		return out.Fail("scan", err)
	}
	defer engine.Close()

	plan, err := engine.Plan(ctx, opts)
	if err != nil {
		return out.Fail("scan", err)
	}
	return out.WriteSuccess("scan", newScanView(plan, string(opts.Algorithm)))
}

type scanEntry struct {
	Path   string `json:"path" yaml:"path"`
	Digest string `json:"digest" yaml:"digest"`
	Size   int64  `json:"size" yaml:"size"`
	Cached bool   `json:"cached" yaml:"cached"`
}

type scanView struct {
	Root            string              `json:"root" yaml:"root"`
	Algorithm       string              `json:"algorithm" yaml:"algorithm"`
	Files           []scanEntry         `json:"files" yaml:"files"`
	DistinctDigests int                 `json:"distinctDigests" yaml:"distinctDigests"`
	Duplicates      map[string][]string `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
}

func newScanView(plan *deploy.Plan, algorithm string) scanView {
	v := scanView{
		Root:            plan.Root,
		Algorithm:       algorithm,
		Files:           make([]scanEntry, 0, len(plan.Entries)),
		DistinctDigests: plan.Index.DistinctDigests(),
		Duplicates:      plan.Index.Duplicates(),
	}
	for _, e := range plan.Entries {
		v.Files = append(v.Files, scanEntry{
			Path:   e.RelativePath,
			Digest: e.Digest,
			Size:   e.Size,
			Cached: e.FromCache,
		})
	}
	return v
}

func (v scanView) AsTableRenderer() types.TableRenderer {
	rows := make([][]string, 0, len(v.Files))
	for _, f := range v.Files {
		rows = append(rows, []string{truncate(f.Path, 60), f.Digest, formatSize(f.Size), strconv.FormatBool(f.Cached)})
	}
	return staticTable{
		headers: []string{"Path", "Digest", "Size", "Cached"},
		rows:    rows,
		empty:   "No files found.",
	}
}
