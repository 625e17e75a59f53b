package cli

import (
	"os"

	"github.com/pterm/pterm"

	"github.com/dl-alexandre/netdeploy/internal/deploy"
	"github.com/dl-alexandre/netdeploy/internal/deploy/executor"
)

var stateText = map[deploy.State]string{
	deploy.StateScanning:        "Hashing files",
	deploy.StateIndexed:         "Files indexed",
	deploy.StateNegotiating:     "Negotiating deploy",
	deploy.StateAwaitingUploads: "Resolving required files",
	deploy.StateUploading:       "Uploading",
	deploy.StateComplete:        "Deploy complete",
}

// progressUI draws a spinner for the pipeline phases and a bar for uploads
// on stderr. It is inert when output is machine-readable or quiet.
type progressUI struct {
	enabled bool
	spinner *pterm.SpinnerPrinter
	bar     *pterm.ProgressbarPrinter
}

func newProgressUI(out *OutputWriter) *progressUI {
	return &progressUI{enabled: out.Progress()}
}

func (p *progressUI) begin() {
	if !p.enabled {
		return
	}
	spinner, err := pterm.DefaultSpinner.
		WithWriter(os.Stderr).
		WithRemoveWhenDone(true).
		Start(stateText[deploy.StateScanning])
	if err == nil {
		p.spinner = spinner
	}
}

func (p *progressUI) state(_, to deploy.State) {
	if p.spinner != nil {
		if text, ok := stateText[to]; ok {
			p.spinner.UpdateText(text)
		}
	}
}

func (p *progressUI) required(_ string, jobs []executor.Job) {
	if !p.enabled {
		return
	}
	p.stopSpinner()
	if len(jobs) == 0 {
		return
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(len(jobs)).
		WithTitle("Uploading").
		WithWriter(os.Stderr).
		WithRemoveWhenDone(true).
		Start()
	if err == nil {
		p.bar = bar
	}
}

func (p *progressUI) uploaded(executor.Job) {
	if p.bar != nil {
		p.bar.Increment()
	}
}

func (p *progressUI) finish() {
	p.stopSpinner()
	if p.bar != nil {
		_, _ = p.bar.Stop()
		p.bar = nil
	}
}

func (p *progressUI) stopSpinner() {
	if p.spinner != nil {
		_ = p.spinner.Stop()
		p.spinner = nil
	}
}
