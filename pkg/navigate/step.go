package navigate

import (
	"fmt"
	"time"

	"github.com/tenniscourt/slotwatch/pkg/browser"
)

// Action is what a Step does to its target once it is ready.
type Action string

const (
	ActionClick    Action = "click"
	ActionSelect   Action = "select"
	ActionType     Action = "type"
	ActionScript   Action = "script"
	ActionCheckAll Action = "check-all"
	// ActionWait only awaits the post-condition.
	ActionWait Action = "wait"
)

// Step is one UI interaction: locate Target, perform Action, then await Await.
type Step struct {
	Name   string          `mapstructure:"name"`
	Target browser.Locator `mapstructure:"target"`
	Action Action          `mapstructure:"action"`
	// Value is the option value for select, the text for type and the body for script.
	Value string `mapstructure:"value"`

	Await          browser.Locator   `mapstructure:"await"`
	AwaitCondition browser.Condition `mapstructure:"await_condition"`

	Timeout time.Duration `mapstructure:"timeout"`
	// Retries is the total number of attempts, not the number of repeats.
	Retries  int           `mapstructure:"retries"`
	Optional bool          `mapstructure:"optional"`
	Settle   time.Duration `mapstructure:"settle"`
}

func (s Step) String() string {
	if s.Name != "" {
		return s.Name
	}
	if !s.Target.IsZero() {
		return fmt.Sprintf("%s %s", s.action(), s.Target)
	}
	return fmt.Sprintf("%s %s", s.action(), s.Await)
}

func (s Step) action() Action {
	if s.Action == "" {
		if s.Target.IsZero() {
			return ActionWait
		}
		return ActionClick
	}
	return s.Action
}

// targetCondition is what the target must satisfy before the action runs.
func (s Step) targetCondition() browser.Condition {
	switch s.action() {
	case ActionClick, ActionType:
		return browser.ConditionClickable
	default:
		return browser.ConditionPresent
	}
}

func (s Step) awaitCondition() browser.Condition {
	if s.AwaitCondition != "" {
		return s.AwaitCondition
	}
	if s.Await.By == browser.ByURL {
		return browser.ConditionURLChanged
	}
	return browser.ConditionVisible
}

// Validate rejects steps the executor could never run.
func (s Step) Validate() error {
	switch s.action() {
	case ActionClick, ActionSelect, ActionType, ActionCheckAll:
		if s.Target.IsZero() {
			return fmt.Errorf("step %q: %s needs a target", s, s.action())
		}
	case ActionScript:
		if s.Value == "" {
			return fmt.Errorf("step %q: script needs a value", s)
		}
	case ActionWait:
		if s.Await.IsZero() {
			return fmt.Errorf("step %q: wait needs an await locator", s)
		}
	default:
		return fmt.Errorf("step %q: unknown action %q", s, s.Action)
	}
	if s.Retries < 0 {
		return fmt.Errorf("step %q: negative retries", s)
	}
	return nil
}
