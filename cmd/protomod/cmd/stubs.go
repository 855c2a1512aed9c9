package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var stubsDir string

var stubsCmd = &cobra.Command{
	Use:   "stubs FILE...",
	Short: "Generate typing stubs for compiled schemas",
	Long: `Stubs compiles the given files and prints the static-typing declarations
of every module, one document per package. Nothing is materialized.

With --dir, each document is written to <dir>/<identity path>/stub.go.txt.

Example:
  protomod stubs -I proto acme/orders.proto --dir stubs/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStubs,
}

func init() {
	stubsCmd.Flags().StringVarP(&stubsDir, "dir", "d", "",
		"Directory to write stubs to")

	rootCmd.AddCommand(stubsCmd)
}

func runStubs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Compiler.IncludeImports = true

	s, log, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := setupSignalHandler()
	bin, err := s.CompileBin(ctx, args)
	if err != nil {
		return reportCompileError(err)
	}
	identities, err := s.LoadDescriptorSet(ctx, bin)
	if err != nil {
		return err
	}

	for i, id := range identities {
		text, err := s.Stub(id)
		if err != nil {
			return err
		}

		if stubsDir == "" {
			if i > 0 {
				fmt.Fprintln(outputWriter)
			}
			fmt.Fprint(outputWriter, text)
			continue
		}

		out := filepath.Join(stubsDir, filepath.FromSlash(strings.ReplaceAll(id, ".", "/")), "stub.go.txt")
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("failed to create stub directory: %w", err)
		}
		if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
			return fmt.Errorf("failed to write stub for %s: %w", id, err)
		}
		log.WithModule(id).Infow("Wrote stub", "file", out)
	}
	return nil
}
