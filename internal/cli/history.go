package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/netdeploy/internal/config"
	"github.com/dl-alexandre/netdeploy/internal/deploy/state"
	"github.com/dl-alexandre/netdeploy/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent deploys",
	Long:  "List deploy runs recorded locally, newest first, including failed ones",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := cmd.Context()

	path, err := config.GetStatePath()
	if err != nil {
		return out.Fail("history", err)
	}
	db, err := state.Open(ctx, path, logger)
	if err != nil {
		return out.Fail("history", err)
	}
	defer db.Close()

	records, err := db.ListDeploys(ctx, historyLimit)
	if err != nil {
		return out.Fail("history", err)
	}
	return out.WriteSuccess("history", historyView(records))
}

type historyView []state.DeployRecord

func (h historyView) AsTableRenderer() types.TableRenderer {
	rows := make([][]string, 0, len(h))
	for _, r := range h {
		id := r.DeployID
		if id == "" {
			id = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(id, 26),
			r.State,
			strconv.Itoa(r.Files),
			strconv.Itoa(r.Uploaded) + "/" + strconv.Itoa(r.Required),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			truncate(r.Error, 60),
		})
	}
	return staticTable{
		headers: []string{"#", "Started", "Deploy ID", "State", "Files", "Uploaded", "Duration", "Error"},
		rows:    rows,
		empty:   "No deploys recorded yet.",
	}
}
