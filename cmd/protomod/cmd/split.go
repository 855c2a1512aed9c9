package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/protomod/internal/compiler"
	"github.com/dbsmedya/protomod/internal/naming"
)

var splitDir string

var splitCmd = &cobra.Command{
	Use:   "split SET",
	Short: "Split a descriptor set into per-file records",
	Long: `Split reads a serialized FileDescriptorSet and lists the file records it
contains. Records are cut at their frame boundaries and never re-encoded, so
unknown fields and custom options survive unchanged.

With --dir, every record is written to <dir>/<dotted file name>.binpb.

Example:
  protomod split schema.binpb --dir records/`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().StringVarP(&splitDir, "dir", "d", "",
		"Directory to write records to")

	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	bin, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read descriptor set: %w", err)
	}

	units, err := compiler.UnitsFromDescriptorSet(bin)
	if err != nil {
		return err
	}

	if splitDir != "" {
		if err := os.MkdirAll(splitDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	printHeader("Descriptor Set: %s", filepath.Base(args[0]))
	fmt.Fprintln(outputWriter)
	for i, u := range units {
		deps := "-"
		if len(u.Dependencies) > 0 {
			deps = strings.Join(u.Dependencies, ", ")
		}
		fmt.Fprintf(outputWriter, "  [%d] %s (%d bytes) package=%s deps=%s\n",
			i+1, u.Name, len(u.Descriptor), orDash(u.Package), deps)

		if splitDir == "" {
			continue
		}
		out := filepath.Join(splitDir, naming.DottedFileName(u.Name)+".binpb")
		if err := os.WriteFile(out, u.Descriptor, 0o644); err != nil {
			return fmt.Errorf("failed to write record %s: %w", u.Name, err)
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
