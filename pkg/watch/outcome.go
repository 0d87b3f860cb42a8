package watch

import (
	"errors"

	"github.com/tenniscourt/slotwatch/pkg/navigate"
	"github.com/tenniscourt/slotwatch/pkg/notify"
)

// Outcome summarises how a run ended.
type Outcome int

const (
	Unchanged Outcome = iota
	Changed
	StepFailed
	Suspended
	LoadTimeout
	NotifyFailed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	case StepFailed:
		return "step-failed"
	case Suspended:
		return "suspended"
	case LoadTimeout:
		return "load-timeout"
	case NotifyFailed:
		return "notify-failed"
	default:
		return "failed"
	}
}

// Process exit codes. ExitLocked is used by the command layer when the venue lock is held.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitStepFailed  = 2
	ExitSuspended   = 3
	ExitLoadTimeout = 4
	ExitNotify      = 5
	ExitLocked      = 6
)

// ExitCode maps the outcome to the process status a scheduler sees.
func (o Outcome) ExitCode() int {
	switch o {
	case Unchanged, Changed:
		return ExitOK
	case StepFailed:
		return ExitStepFailed
	case Suspended:
		return ExitSuspended
	case LoadTimeout:
		return ExitLoadTimeout
	case NotifyFailed:
		return ExitNotify
	default:
		return ExitError
	}
}

// Classify maps a run error to its outcome.
func Classify(err error) Outcome {
	var dispatch *notify.DispatchError
	switch {
	case err == nil:
		return Unchanged
	case errors.Is(err, navigate.ErrServiceSuspended):
		return Suspended
	case errors.Is(err, navigate.ErrLoadTimeout):
		return LoadTimeout
	case navigate.IsCritical(err):
		return StepFailed
	case errors.As(err, &dispatch):
		return NotifyFailed
	}
	return Failed
}
