package synth

import (
	"errors"
	"fmt"
)

// ErrSynthesis is matched by every *SynthesisError.
var ErrSynthesis = errors.New("module synthesis failed")

// ErrModuleNotFound is returned by a Chain when no finder knows a name.
var ErrModuleNotFound = errors.New("module not found")

// SynthesisError carries the plan that was being executed when materialization
// failed.
type SynthesisError struct {
	Identity string
	Plan     string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("failed to synthesize module %q: %v", e.Identity, e.Err)
}

// Detailed returns the error message followed by the attempted plan.
func (e *SynthesisError) Detailed() string {
	return fmt.Sprintf("%s\n\nplan:\n%s", e.Error(), e.Plan)
}

// Is reports whether target is ErrSynthesis.
func (e *SynthesisError) Is(target error) bool {
	return target == ErrSynthesis
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
