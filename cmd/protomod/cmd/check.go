package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/protomod"
	"github.com/dbsmedya/protomod/internal/diagnostic"
)

var checkFormat string

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Compile schemas and report diagnostics",
	Long: `Check compiles the given files and prints every diagnostic the compiler
reported, grouped per file, in the order they were found.

Formats:
  - text: source snippets with the offending span underlined
  - json: one object per diagnostic, with line and column
  - yaml: same as json

Example:
  protomod check --format json acme/*.proto`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text",
		"Output format (text, json, yaml)")

	rootCmd.AddCommand(checkCmd)
}

// checkReport is the machine-readable outcome of a check.
type checkReport struct {
	OK          bool         `json:"ok" yaml:"ok"`
	Summary     string       `json:"summary,omitempty" yaml:"summary,omitempty"`
	Files       []string     `json:"files,omitempty" yaml:"files,omitempty"`
	Diagnostics []checkEntry `json:"diagnostics" yaml:"diagnostics"`
}

// checkEntry is one flattened diagnostic with its position resolved.
type checkEntry struct {
	File     string   `json:"file,omitempty" yaml:"file,omitempty"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int      `json:"column,omitempty" yaml:"column,omitempty"`
	Severity string   `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Causes   []string `json:"causes,omitempty" yaml:"causes,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	switch checkFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", checkFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, log, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	_, err = s.CompileBin(setupSignalHandler(), args)
	var ce *protomod.CompilationError
	if err != nil && !errors.As(err, &ce) {
		return err
	}

	report := buildCheckReport(ce)
	if err := writeCheckReport(report, ce); err != nil {
		return err
	}
	if ce != nil {
		return &reportedError{err: ce}
	}
	return nil
}

func buildCheckReport(ce *protomod.CompilationError) checkReport {
	report := checkReport{OK: ce == nil, Diagnostics: []checkEntry{}}
	if ce == nil {
		return report
	}

	flat := ce.Diagnostics()
	report.Summary = ce.Error()
	report.Files = diagnostic.Files(flat)
	for _, n := range flat {
		entry := checkEntry{
			File:     n.Filename,
			Severity: n.Severity,
			Message:  n.Message,
			Causes:   n.Causes,
		}
		if len(n.Labels) > 0 {
			entry.Label = n.Labels[0].Label
			if src, ok := ce.Sources[n.Filename]; ok {
				entry.Line, entry.Column = diagnostic.Position(src, n.Labels[0].Span.Offset)
			}
		}
		report.Diagnostics = append(report.Diagnostics, entry)
	}
	return report
}

func writeCheckReport(report checkReport, ce *protomod.CompilationError) error {
	switch checkFormat {
	case "json":
		data, err := diagnostic.EncodeJSONIndent(report)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		_, err = fmt.Fprintln(outputWriter, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(outputWriter)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	}

	if ce == nil {
		fmt.Fprintln(outputWriter, color.Green.Sprint("ok"))
		return nil
	}
	opts := diagnostic.RenderOptions{Color: outputWriter == os.Stdout && color.SupportColor()}
	if err := diagnostic.Render(outputWriter, ce.Diagnostics(), ce.Sources, opts); err != nil {
		return err
	}
	fmt.Fprintf(outputWriter, "\n%s: %d diagnostic(s) in %d file(s)\n",
		color.Red.Sprint("failed"), len(report.Diagnostics), len(report.Files))
	return nil
}

// reportCompileError prints the detailed report of a compilation failure to
// stderr and marks it as reported.
func reportCompileError(err error) error {
	var ce *protomod.CompilationError
	if !errors.As(err, &ce) {
		return err
	}
	opts := diagnostic.RenderOptions{Color: color.SupportColor()}
	_ = diagnostic.Render(os.Stderr, ce.Diagnostics(), ce.Sources, opts)
	return &reportedError{err: err}
}
