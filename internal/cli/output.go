package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	apperrors "github.com/dl-alexandre/netdeploy/internal/errors"
	"github.com/dl-alexandre/netdeploy/internal/types"
	"github.com/dl-alexandre/netdeploy/internal/utils"
)

// OutputWriter handles CLI output formatting
type OutputWriter struct {
	format   types.OutputFormat
	quiet    bool
	verbose  bool
	traceID  string
	warnings []types.CLIWarning
	out      io.Writer
	errOut   io.Writer
}

// NewOutputWriter creates a new output writer
func NewOutputWriter(format types.OutputFormat, quiet, verbose bool) *OutputWriter {
	return &OutputWriter{
		format:   format,
		quiet:    quiet,
		verbose:  verbose,
		traceID:  uuid.New().String(),
		warnings: []types.CLIWarning{},
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
}

// SetWriters redirects standard and diagnostic output.
func (w *OutputWriter) SetWriters(out, errOut io.Writer) {
	w.out, w.errOut = out, errOut
}

// Progress reports whether an interactive progress display may be drawn.
func (w *OutputWriter) Progress() bool {
	return w.format == types.OutputFormatTable && !w.quiet
}

// AddWarning adds a warning to the output
func (w *OutputWriter) AddWarning(code, message, severity string) {
	w.warnings = append(w.warnings, types.CLIWarning{
		Code:     code,
		Message:  message,
		Severity: severity,
	})
}

// WriteSuccess writes a successful result
func (w *OutputWriter) WriteSuccess(command string, data interface{}) error {
	output := types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        []types.CLIError{},
	}

	switch w.format {
	case types.OutputFormatJSON:
		return w.writeJSON(output)
	case types.OutputFormatYAML:
		return w.writeYAML(output)
	default:
		w.writeWarnings()
		return w.writeTable(data)
	}
}

// WriteError writes an error result and returns an error carrying its exit
// code, so a failed command never exits 0.
func (w *OutputWriter) WriteError(command string, cliErr types.CLIError) error {
	return w.WriteErrorWithData(command, nil, cliErr)
}

// WriteErrorWithData is WriteError for commands that have partial results.
func (w *OutputWriter) WriteErrorWithData(command string, data interface{}, cliErr types.CLIError) error {
	output := types.CLIOutput{
		SchemaVersion: utils.SchemaVersion,
		TraceID:       w.traceID,
		Command:       command,
		Data:          data,
		Warnings:      w.warnings,
		Errors:        []types.CLIError{cliErr},
	}

	var err error
	switch w.format {
	case types.OutputFormatJSON:
		err = w.writeJSON(output)
	case types.OutputFormatYAML:
		err = w.writeYAML(output)
	default:
		w.writeWarnings()
		if data != nil {
			err = w.writeTable(data)
		}
		fmt.Fprintf(w.errOut, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
		if w.verbose {
			fmt.Fprintf(w.errOut, "[VERBOSE] Trace ID: %s\n", w.traceID)
		}
	}
	if err != nil {
		return err
	}
	return &reportedError{AppError: utils.NewAppError(cliErr)}
}

// Fail classifies err and writes it.
func (w *OutputWriter) Fail(command string, err error) error {
	return w.WriteError(command, apperrors.ToCLIError(err))
}

// reportedError has already been printed; Execute only maps it to an exit code.
type reportedError struct {
	*utils.AppError
}

func (e *reportedError) Unwrap() error { return e.AppError }

func (w *OutputWriter) writeJSON(output types.CLIOutput) error {
	encoder := json.NewEncoder(w.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func (w *OutputWriter) writeYAML(output types.CLIOutput) error {
	encoder := yaml.NewEncoder(w.out)
	encoder.SetIndent(2)
	if err := encoder.Encode(output); err != nil {
		return err
	}
	return encoder.Close()
}

func (w *OutputWriter) writeWarnings() {
	if w.quiet {
		return
	}
	for _, warning := range w.warnings {
		fmt.Fprintf(w.errOut, "Warning [%s]: %s\n", warning.Code, warning.Message)
	}
}

func (w *OutputWriter) writeTable(data interface{}) error {
	if renderable, ok := data.(types.TableRenderable); ok {
		return w.renderTable(renderable.AsTableRenderer())
	}
	if renderer, ok := data.(types.TableRenderer); ok {
		return w.renderTable(renderer)
	}
	switch v := data.(type) {
	case map[string]string:
		return w.renderTable(keyValueTable(v))
	default:
		// Fallback to JSON for types without a table form
		return w.writeJSON(types.CLIOutput{
			SchemaVersion: utils.SchemaVersion,
			TraceID:       w.traceID,
			Data:          data,
			Warnings:      []types.CLIWarning{},
			Errors:        []types.CLIError{},
		})
	}
}

func (w *OutputWriter) renderTable(renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		if !w.quiet {
			fmt.Fprintln(w.out, renderer.EmptyMessage())
		}
		return nil
	}

	table := tablewriter.NewWriter(w.out)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return nil
}

// Log writes to stderr if not quiet
func (w *OutputWriter) Log(format string, args ...interface{}) {
	if !w.quiet {
		fmt.Fprintf(w.errOut, format+"\n", args...)
	}
}

// Verbose writes to stderr if verbose is enabled
func (w *OutputWriter) Verbose(format string, args ...interface{}) {
	if w.verbose {
		fmt.Fprintf(w.errOut, "[VERBOSE] "+format+"\n", args...)
	}
}

type kvTable struct {
	keys   []string
	values map[string]string
}

func keyValueTable(m map[string]string) kvTable {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return kvTable{keys: keys, values: m}
}

func (t kvTable) Headers() []string    { return []string{"Key", "Value"} }
func (t kvTable) EmptyMessage() string { return "Nothing to show." }
func (t kvTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.keys))
	for _, k := range t.keys {
		rows = append(rows, []string{k, t.values[k]})
	}
	return rows
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
