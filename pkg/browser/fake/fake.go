// Package fake provides a scripted, in-memory browser.Driver for tests and offline replays.
// Nothing here sleeps: a wait either succeeds immediately or fails with browser.ErrTimeout.
package fake

import (
	"context"
	"fmt"
	"time"

	"github.com/tenniscourt/slotwatch/pkg/browser"
)

type element struct {
	loc browser.Locator
}

func (e element) Locator() browser.Locator { return e.loc }

// Driver holds a mutable view of one page. Locators are keyed by their String() form.
type Driver struct {
	URL    string
	Markup string

	Shown    map[string]bool
	Disabled map[string]bool
	Checked  map[string]int

	// FailWaits makes the next N waits on a locator time out even if it is shown.
	FailWaits map[string]int
	// StaleClicks makes the next N clicks on a locator fail as stale.
	StaleClicks map[string]int
	// FailNavigate makes the next N navigations time out.
	FailNavigate int

	OnClick    map[string]func(d *Driver) error
	OnNavigate func(d *Driver, url string) error

	Waits     map[string]int
	Clicks    map[string]int
	Selected  map[string]string
	Typed     map[string]string
	Scripts   []string
	Navigated []string
	Closed    int
}

// New returns an empty page.
func New() *Driver {
	return &Driver{
		Shown:       map[string]bool{},
		Disabled:    map[string]bool{},
		Checked:     map[string]int{},
		FailWaits:   map[string]int{},
		StaleClicks: map[string]int{},
		OnClick:     map[string]func(d *Driver) error{},
		Waits:       map[string]int{},
		Clicks:      map[string]int{},
		Selected:    map[string]string{},
		Typed:       map[string]string{},
	}
}

func (d *Driver) Show(locs ...browser.Locator) {
	for _, l := range locs {
		d.Shown[l.String()] = true
	}
}

func (d *Driver) Hide(locs ...browser.Locator) {
	for _, l := range locs {
		delete(d.Shown, l.String())
	}
}

func (d *Driver) Disable(locs ...browser.Locator) {
	for _, l := range locs {
		d.Disabled[l.String()] = true
	}
}

// Then registers a click hook on loc.
func (d *Driver) Then(loc browser.Locator, fn func(d *Driver) error) {
	d.OnClick[loc.String()] = fn
}

func (d *Driver) closedErr() error {
	if d.Closed > 0 {
		return browser.ErrClosed
	}
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.closedErr(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.Navigated = append(d.Navigated, url)
	if d.FailNavigate > 0 {
		d.FailNavigate--
		return fmt.Errorf("%w: navigate %s", browser.ErrTimeout, url)
	}
	d.URL = url
	if d.OnNavigate != nil {
		return d.OnNavigate(d, url)
	}
	return nil
}

func (d *Driver) FindElement(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	if err := d.closedErr(); err != nil {
		return nil, err
	}
	if !d.Shown[loc.String()] {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, loc)
	}
	return element{loc: loc}, nil
}

func (d *Driver) WaitFor(ctx context.Context, loc browser.Locator, cond browser.Condition, timeout time.Duration) (browser.Element, error) {
	if err := d.closedErr(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := loc.String()
	d.Waits[key]++
	if cond == browser.ConditionURLChanged {
		if d.URL == loc.Value {
			return nil, fmt.Errorf("%w: url still %s", browser.ErrTimeout, loc.Value)
		}
		return element{loc: loc}, nil
	}
	if d.FailWaits[key] > 0 {
		d.FailWaits[key]--
		return nil, fmt.Errorf("%w: %s %s", browser.ErrTimeout, cond, loc)
	}
	if !d.Shown[key] {
		return nil, fmt.Errorf("%w: %s %s", browser.ErrTimeout, cond, loc)
	}
	if cond == browser.ConditionClickable && d.Disabled[key] {
		return nil, fmt.Errorf("%w: %s %s", browser.ErrTimeout, cond, loc)
	}
	return element{loc: loc}, nil
}

func (d *Driver) Click(ctx context.Context, el browser.Element) error {
	if err := d.closedErr(); err != nil {
		return err
	}
	key := el.Locator().String()
	d.Clicks[key]++
	if d.StaleClicks[key] > 0 {
		d.StaleClicks[key]--
		return fmt.Errorf("%w: %s", browser.ErrStale, key)
	}
	if !d.Shown[key] {
		return fmt.Errorf("%w: %s", browser.ErrStale, key)
	}
	if d.Disabled[key] {
		return fmt.Errorf("%w: %s", browser.ErrNotInteractable, key)
	}
	if fn := d.OnClick[key]; fn != nil {
		return fn(d)
	}
	return nil
}

func (d *Driver) SelectOption(ctx context.Context, el browser.Element, value string) error {
	if err := d.closedErr(); err != nil {
		return err
	}
	key := el.Locator().String()
	if !d.Shown[key] {
		return fmt.Errorf("%w: %s", browser.ErrStale, key)
	}
	d.Selected[key] = value
	if fn := d.OnClick[key]; fn != nil {
		return fn(d)
	}
	return nil
}

func (d *Driver) Type(ctx context.Context, el browser.Element, text string) error {
	if err := d.closedErr(); err != nil {
		return err
	}
	key := el.Locator().String()
	if !d.Shown[key] {
		return fmt.Errorf("%w: %s", browser.ErrStale, key)
	}
	d.Typed[key] = text
	return nil
}

func (d *Driver) CheckAll(ctx context.Context, loc browser.Locator) (int, error) {
	if err := d.closedErr(); err != nil {
		return 0, err
	}
	n := d.Checked[loc.String()]
	d.Checked[loc.String()] = 0
	return n, nil
}

func (d *Driver) ExecuteScript(ctx context.Context, script string) error {
	if err := d.closedErr(); err != nil {
		return err
	}
	d.Scripts = append(d.Scripts, script)
	return nil
}

func (d *Driver) RenderedMarkup(ctx context.Context) (string, error) {
	if err := d.closedErr(); err != nil {
		return "", err
	}
	return d.Markup, nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	if err := d.closedErr(); err != nil {
		return "", err
	}
	return d.URL, nil
}

func (d *Driver) Close() error {
	d.Closed++
	return nil
}
