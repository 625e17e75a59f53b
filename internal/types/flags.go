package types

import "time"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	Profile      string
	ConfigPath   string
	SiteID       string
	APIBase      string
	Token        string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	LogFile      string
	Timeout      time.Duration
}

// Validate checks flag combinations that cobra cannot express.
func (f GlobalFlags) Validate() error {
	switch f.OutputFormat {
	case OutputFormatJSON, OutputFormatTable, OutputFormatYAML:
	default:
		return &InvalidFlagError{Flag: "output", Value: string(f.OutputFormat), Reason: "must be json, table or yaml"}
	}
	if f.Quiet && f.Verbose {
		return &InvalidFlagError{Flag: "quiet", Value: "true", Reason: "cannot be combined with --verbose"}
	}
	if f.Timeout < 0 {
		return &InvalidFlagError{Flag: "timeout", Value: f.Timeout.String(), Reason: "must not be negative"}
	}
	return nil
}

type InvalidFlagError struct {
	Flag   string
	Value  string
	Reason string
}

func (e *InvalidFlagError) Error() string {
	return "invalid --" + e.Flag + " " + e.Value + ": " + e.Reason
}
