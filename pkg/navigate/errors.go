package navigate

import (
	"errors"
	"fmt"

	"github.com/tenniscourt/slotwatch/pkg/browser"
)

var (
	// ErrServiceSuspended means the portal announced it is out of service. Never retried.
	ErrServiceSuspended = errors.New("service suspended")
	// ErrLoadTimeout means the initial page never became ready before the watchdog fired.
	ErrLoadTimeout = errors.New("initial page load watchdog expired")

	// Driver error kinds the executor retries.
	ErrTransientLoadTimeout = browser.ErrTimeout
	ErrStaleReference       = browser.ErrStale
)

// StepFailedError is returned once a step has used up its attempts.
type StepFailedError struct {
	Step     string
	Critical bool
	Attempts int
	Err      error
}

func (e *StepFailedError) Error() string {
	kind := "optional"
	if e.Critical {
		kind = "critical"
	}
	return fmt.Sprintf("%s step %q failed after %d attempt(s): %v", kind, e.Step, e.Attempts, e.Err)
}

func (e *StepFailedError) Unwrap() error { return e.Err }

// IsCritical reports whether err is a StepFailedError that must abort navigation.
func IsCritical(err error) bool {
	var sf *StepFailedError
	return errors.As(err, &sf) && sf.Critical
}
