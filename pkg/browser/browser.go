// Package browser is the boundary to the automation driver. Everything above it talks in
// locators and conditions; only the chromedp implementation knows about DevTools.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// By selects how a Locator's Value is interpreted.
type By string

const (
	ByID    By = "id"
	ByCSS   By = "css"
	ByXPath By = "xpath"
	// ByURL is only meaningful with ConditionURLChanged; Value is the URL the page must leave.
	ByURL By = "url"
)

// Locator identifies an element (or, for ByURL, a page address).
type Locator struct {
	By    By     `mapstructure:"by"`
	Value string `mapstructure:"value"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}

// IsZero reports whether the locator was left unset.
func (l Locator) IsZero() bool {
	return l.Value == ""
}

// ID, CSS and XPath are shorthands used by the built-in venue tables.
func ID(v string) Locator    { return Locator{By: ByID, Value: v} }
func CSS(v string) Locator   { return Locator{By: ByCSS, Value: v} }
func XPath(v string) Locator { return Locator{By: ByXPath, Value: v} }
func URLNot(v string) Locator {
	return Locator{By: ByURL, Value: v}
}

// ParseLocator reads the "by=value" form used in config files, e.g. "id=btn-go" or
// "xpath=//img[@alt='次へ']".
func ParseLocator(s string) (Locator, error) {
	i := strings.Index(s, "=")
	if i <= 0 {
		return Locator{}, fmt.Errorf("locator %q: want by=value", s)
	}
	l := Locator{By: By(strings.ToLower(strings.TrimSpace(s[:i]))), Value: s[i+1:]}
	switch l.By {
	case ByID, ByCSS, ByXPath, ByURL:
		return l, nil
	}
	return Locator{}, fmt.Errorf("locator %q: unknown kind %q", s, l.By)
}

// Condition is what WaitFor polls for.
type Condition string

const (
	ConditionPresent    Condition = "present"
	ConditionVisible    Condition = "visible"
	ConditionClickable  Condition = "clickable"
	ConditionURLChanged Condition = "url-changed"
)

// Element is an opaque handle returned by the driver. Handles go stale when the page
// re-renders; callers re-locate instead of caching them across steps.
type Element interface {
	Locator() Locator
}

// Driver is the subset of a browser session the engine needs.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	FindElement(ctx context.Context, loc Locator) (Element, error)
	WaitFor(ctx context.Context, loc Locator, cond Condition, timeout time.Duration) (Element, error)
	Click(ctx context.Context, el Element) error
	SelectOption(ctx context.Context, el Element, value string) error
	Type(ctx context.Context, el Element, text string) error
	// CheckAll ticks every checkbox matched by loc that is not already ticked.
	CheckAll(ctx context.Context, loc Locator) (int, error)
	ExecuteScript(ctx context.Context, script string) error
	RenderedMarkup(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

var (
	// ErrTimeout means the awaited condition was not observed in time.
	ErrTimeout = errors.New("timed out waiting for condition")
	// ErrStale means a located element disappeared before it could be used.
	ErrStale = errors.New("stale element reference")
	// ErrNotInteractable means the element exists but is hidden or disabled.
	ErrNotInteractable = errors.New("element not interactable")
	// ErrNotFound means no element matched the locator.
	ErrNotFound = errors.New("element not found")
	// ErrClosed means the session is gone; nothing can be retried.
	ErrClosed = errors.New("browser session closed")
)

// IsTransient reports whether err belongs to the class of driver failures worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStale) ||
		errors.Is(err, ErrNotInteractable) ||
		errors.Is(err, ErrNotFound)
}
