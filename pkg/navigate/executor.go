package navigate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tenniscourt/slotwatch/pkg/browser"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
	// DefaultStaleBackoff is added to the regular backoff after a stale reference.
	DefaultStaleBackoff = 500 * time.Millisecond
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Kind tags the outcome of a single attempt.
type Kind int

const (
	Success Kind = iota
	Retryable
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Result is what one attempt of a step produced. Err is nil only for Success.
type Result struct {
	Kind Kind
	Err  error
}

// DefaultBackoff waits between 1 and 3 seconds, regardless of the attempt number.
func DefaultBackoff(attempt int) time.Duration {
	return retryablehttp.LinearJitterBackoff(time.Second, 3*time.Second, 0, nil)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor runs steps against one driver session.
type Executor struct {
	Driver browser.Driver
	Log    Logger

	// Timeout and Retries apply to steps that leave their own unset.
	Timeout time.Duration
	Retries int

	Backoff      func(attempt int) time.Duration
	StaleBackoff time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
}

// NewExecutor returns an Executor with the default timing policy.
func NewExecutor(d browser.Driver, log Logger) *Executor {
	if log == nil {
		log = nopLogger{}
	}
	return &Executor{
		Driver:       d,
		Log:          log,
		Timeout:      DefaultTimeout,
		Retries:      DefaultRetries,
		Backoff:      DefaultBackoff,
		StaleBackoff: DefaultStaleBackoff,
		Sleep:        Sleep,
	}
}

func (e *Executor) logger() Logger {
	if e.Log == nil {
		return nopLogger{}
	}
	return e.Log
}

func (e *Executor) timeout(s Step) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

func (e *Executor) attempts(s Step) int {
	if s.Retries > 0 {
		return s.Retries
	}
	if e.Retries > 0 {
		return e.Retries
	}
	return DefaultRetries
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep == nil {
		return Sleep(ctx, d)
	}
	return e.Sleep(ctx, d)
}

// Pause sleeps with the executor's sleep function, for settle delays outside a step.
func (e *Executor) Pause(ctx context.Context, d time.Duration) error {
	return e.sleep(ctx, d)
}

func classify(ctx context.Context, err error) Result {
	switch {
	case err == nil:
		return Result{Kind: Success}
	case ctx.Err() != nil:
		return Result{Kind: Fatal, Err: ctx.Err()}
	case browser.IsTransient(err):
		return Result{Kind: Retryable, Err: err}
	}
	// Closed sessions and script exceptions will not improve on retry.
	return Result{Kind: Fatal, Err: err}
}

// Attempt performs the step once: wait for the target, act on it, then await the
// post-condition.
func (e *Executor) Attempt(ctx context.Context, s Step) Result {
	timeout := e.timeout(s)
	if err := e.act(ctx, s, timeout); err != nil {
		return classify(ctx, err)
	}
	if !s.Await.IsZero() {
		if _, err := e.Driver.WaitFor(ctx, s.Await, s.awaitCondition(), timeout); err != nil {
			return classify(ctx, err)
		}
	}
	return Result{Kind: Success}
}

func (e *Executor) act(ctx context.Context, s Step, timeout time.Duration) error {
	action := s.action()
	if action == ActionWait {
		return nil
	}
	if s.Target.IsZero() {
		if action == ActionScript {
			return e.Driver.ExecuteScript(ctx, s.Value)
		}
		return fmt.Errorf("%s without a target", action)
	}

	el, err := e.Driver.WaitFor(ctx, s.Target, s.targetCondition(), timeout)
	if err != nil {
		return err
	}
	switch action {
	case ActionClick:
		return e.Driver.Click(ctx, el)
	case ActionSelect:
		return e.Driver.SelectOption(ctx, el, s.Value)
	case ActionType:
		return e.Driver.Type(ctx, el, s.Value)
	case ActionScript:
		return e.Driver.ExecuteScript(ctx, s.Value)
	case ActionCheckAll:
		n, err := e.Driver.CheckAll(ctx, s.Target)
		if err != nil {
			return err
		}
		e.logger().Debugf("%s: ticked %d checkbox(es)", s, n)
		return nil
	}
	return fmt.Errorf("unknown action %q", action)
}

// Execute runs the step until it succeeds, fails fatally, or has been attempted exactly
// its retry budget. Any failure comes back as a *StepFailedError.
func (e *Executor) Execute(ctx context.Context, s Step) error {
	log := e.logger()
	attempts := e.attempts(s)

	var last Result
	for i := 1; i <= attempts; i++ {
		last = e.Attempt(ctx, s)
		switch last.Kind {
		case Success:
			log.Debugf("step %q done (attempt %d/%d)", s, i, attempts)
			if s.Settle > 0 {
				if err := e.sleep(ctx, s.Settle); err != nil {
					return &StepFailedError{Step: s.String(), Critical: true, Attempts: i, Err: err}
				}
			}
			return nil
		case Fatal:
			critical := !s.Optional || ctx.Err() != nil || errors.Is(last.Err, browser.ErrClosed)
			return &StepFailedError{Step: s.String(), Critical: critical, Attempts: i, Err: last.Err}
		}

		log.Warnf("step %q attempt %d/%d failed: %v", s, i, attempts, last.Err)
		if i == attempts {
			break
		}
		if err := e.backoff(ctx, i, last.Err); err != nil {
			return &StepFailedError{Step: s.String(), Critical: true, Attempts: i, Err: err}
		}
	}
	return &StepFailedError{Step: s.String(), Critical: !s.Optional, Attempts: attempts, Err: last.Err}
}

// backoff sleeps after failed attempt i, longer when the page replaced the element.
func (e *Executor) backoff(ctx context.Context, i int, err error) error {
	wait := time.Duration(0)
	if e.Backoff != nil {
		wait = e.Backoff(i)
	}
	if errors.Is(err, browser.ErrStale) {
		wait += e.StaleBackoff
	}
	return e.sleep(ctx, wait)
}

// Retry calls fn until it succeeds or fails with something other than a stale reference
// or a timeout, at most the executor's retry budget. The last error is returned unwrapped
// so callers can tell a missing or disabled control from a flaky one.
func (e *Executor) Retry(ctx context.Context, what string, fn func() error) error {
	attempts := e.attempts(Step{})
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, browser.ErrStale) && !errors.Is(err, browser.ErrTimeout) {
			return err
		}
		e.logger().Warnf("%s attempt %d/%d failed: %v", what, i, attempts, err)
		if i == attempts {
			break
		}
		if serr := e.backoff(ctx, i, err); serr != nil {
			return serr
		}
	}
	return err
}
