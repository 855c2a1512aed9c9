package compiler

import (
	"errors"
	"os"
	"strings"

	"github.com/dbsmedya/protomod/internal/logger"
	"github.com/dbsmedya/protomod/internal/naming"
)

// Preflight checks a compile request against the file system before the
// compiler runs, so that a bad invocation fails as a whole and early.
type Preflight struct {
	logger *logger.Logger
}

// NewPreflight creates a preflight checker.
func NewPreflight(log *logger.Logger) *Preflight {
	if log == nil {
		log = logger.NewNop()
	}
	return &Preflight{logger: log}
}

// RunAllChecks runs every check in order and returns the first failure.
func (p *Preflight) RunAllChecks(files, includes []string) error {
	p.logger.Debugw("Running preflight checks", "files", len(files), "includes", len(includes))

	if err := p.ValidateFilesGiven(files); err != nil {
		return err
	}
	if err := p.ValidateFilesExist(files); err != nil {
		return err
	}
	if err := p.ValidateExtensions(files); err != nil {
		return err
	}
	if err := p.ValidateIncludePaths(includes); err != nil {
		return err
	}

	p.logger.Debug("Preflight checks passed")
	return nil
}

// ValidateFilesGiven rejects an empty request.
func (p *Preflight) ValidateFilesGiven(files []string) error {
	if len(files) == 0 {
		return &ConfigurationError{Check: "input", Message: "no schema files given"}
	}
	return nil
}

// ValidateFilesExist checks that every input is an existing regular file.
func (p *Preflight) ValidateFilesExist(files []string) error {
	for _, f := range files {
		info, err := os.Stat(f)
		if errors.Is(err, os.ErrNotExist) {
			return &ConfigurationError{Check: "input", Message: "File " + f + " does not exist", Files: []string{f}}
		}
		if err != nil {
			return &ConfigurationError{Check: "input", Message: err.Error(), Files: []string{f}}
		}
		if info.IsDir() {
			return &ConfigurationError{Check: "input", Message: "File " + f + " is a directory", Files: []string{f}}
		}
	}
	return nil
}

// ValidateExtensions checks that every input is a schema source file.
func (p *Preflight) ValidateExtensions(files []string) error {
	for _, f := range files {
		if !strings.HasSuffix(f, naming.ProtoExt) {
			return &ConfigurationError{Check: "input", Message: "File " + f + " is not a .proto file", Files: []string{f}}
		}
	}
	return nil
}

// ValidateIncludePaths checks that every include path is an existing directory.
func (p *Preflight) ValidateIncludePaths(includes []string) error {
	var missing []string
	for _, inc := range includes {
		info, err := os.Stat(inc)
		if err != nil || !info.IsDir() {
			missing = append(missing, inc)
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Check: "include_paths", Message: "include paths must be existing directories", Files: missing}
	}
	return nil
}
