package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/protomod"
	"github.com/dbsmedya/protomod/internal/config"
	"github.com/dbsmedya/protomod/internal/logger"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// defaultConfigFile is read when present; its absence is not an error.
const defaultConfigFile = "protomod.yaml"

// CLI flags that override config file values
var (
	cfgFile      string
	logLevel     string
	logFormat    string
	namespace    string
	includePaths []string
	stubOnly     bool
	noCache      bool
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

var rootCmd = &cobra.Command{
	Use:   "protomod",
	Short: "Protobuf schema modules and diagnostics",
	Long: `protomod compiles protobuf schemas and turns the result into runtime
modules, typing stubs and readable diagnostics.

Features:
  - Binary descriptor sets with or without imports and source info
  - One module per package, materialized in dependency order
  - Compiler errors grouped per file with source snippets
  - Comment text copied into custom options
  - On-disk cache of compile results`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile,
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Namespace and compiler overrides
	rootCmd.PersistentFlags().StringVar(&namespace, "root", "",
		"Override the namespace root for module identities")
	rootCmd.PersistentFlags().StringSliceVarP(&includePaths, "include", "I", nil,
		"Include path, searched before configured ones (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&stubOnly, "stub-only", false,
		"Build typing stubs instead of runtime modules")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false,
		"Disable the compile cache")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() config.Overrides {
	return config.Overrides{
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		Root:         namespace,
		IncludePaths: includePaths,
		StubOnly:     stubOnly,
		NoCache:      noCache,
	}
}

// loadConfig reads the config file and applies flag overrides. A missing
// default config file falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	configFile := GetConfigFile()

	cfg := config.DefaultConfig()
	if configFile != "" {
		_, statErr := os.Stat(configFile)
		if statErr == nil || configFile != defaultConfigFile {
			loaded, err := config.Load(configFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
		}
	}

	cfg.ApplyOverrides(GetCLIOverrides())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSession loads the configuration and opens a session with a logger built
// from it.
func newSession(cfg *config.Config) (*protomod.Session, *logger.Logger, error) {
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	s, err := protomod.New(cfg, protomod.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return s, log, nil
}

// reportedError marks an error whose details were already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }
