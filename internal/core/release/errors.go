package release

import (
	"errors"
	"fmt"
)

// =============================================================================
// Deploy Step Errors
// =============================================================================

var (
	ErrPublishFailure     = errors.New("publish failure")
	ErrMaterializeFailure = errors.New("materialize failure")
	ErrEnvironmentFailure = errors.New("environment failure")
	ErrHookFailure        = errors.New("pre-activation hook failure")
	ErrCronFailure        = errors.New("crontab update failure")
	ErrCutoverFailure     = errors.New("cutover failure")
	ErrRetentionFailure   = errors.New("retention failure")
	ErrLockFailure        = errors.New("deploy lock is held")
)

// StepError wraps a failure of one deploy step on one host.
type StepError struct {
	Host string
	Step string // e.g. "materialize", "cutover"
	Kind error  // one of the Err*Failure sentinels
	Err  error  // underlying cause
}

func (e *StepError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s: %s on %s: %v", e.Kind, e.Step, e.Host, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Step, e.Err)
}

// Unwrap exposes both the failure kind and the cause to errors.Is / errors.As.
func (e *StepError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewStepError creates a new StepError.
func NewStepError(host, step string, kind, err error) *StepError {
	return &StepError{Host: host, Step: step, Kind: kind, Err: err}
}

// IsFatal reports whether a failure invalidates the deploy. Retention
// failures happen after cutover and are reported only.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrRetentionFailure)
}
