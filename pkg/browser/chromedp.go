package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	defaultPollInterval    = 250 * time.Millisecond
	defaultNavigateTimeout = 30 * time.Second
	scriptTimeout          = 15 * time.Second
)

// Options configures the Chrome session.
type Options struct {
	Headless        bool
	ExecPath        string
	UserAgent       string
	PollInterval    time.Duration
	NavigateTimeout time.Duration
}

// Chrome drives one headless Chrome tab through chromedp.
type Chrome struct {
	ctx       context.Context
	cancelTab context.CancelFunc
	cancelAll context.CancelFunc
	opts      Options
	closeOnce sync.Once
}

type handle struct {
	loc Locator
}

func (h handle) Locator() Locator { return h.loc }

// NewChrome starts a browser and opens a blank tab. The caller must Close it on every exit path.
func NewChrome(parent context.Context, opts Options) (*Chrome, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = defaultNavigateTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	return &Chrome{
		ctx:       tabCtx,
		cancelTab: cancelTab,
		cancelAll: cancelAlloc,
		opts:      opts,
	}, nil
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	switch {
	case c.ctx.Err() != nil:
		return ErrClosed
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, chromedp.ErrPollingTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case isStaleMessage(err.Error()):
		return fmt.Errorf("%w: %v", ErrStale, err)
	}
	return err
}

func isStaleMessage(msg string) bool {
	for _, marker := range []string{
		"No node with given id",
		"Could not find node",
		"Execution context was destroyed",
		"Cannot find context with specified id",
		"Inspected target navigated or closed",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, c.opts.NavigateTimeout, chromedp.Navigate(url))
}

func (c *Chrome) FindElement(ctx context.Context, loc Locator) (Element, error) {
	var found bool
	if err := c.run(ctx, scriptTimeout, chromedp.Evaluate(conditionJS(loc, ConditionPresent), &found)); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return handle{loc: loc}, nil
}

func (c *Chrome) WaitFor(ctx context.Context, loc Locator, cond Condition, timeout time.Duration) (Element, error) {
	var ok bool
	poll := chromedp.Poll(conditionJS(loc, cond), &ok,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(c.opts.PollInterval),
	)
	// The outer bound only backs up the polling timeout.
	if err := c.run(ctx, timeout+5*time.Second, poll); err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("%w: %s %s", ErrTimeout, cond, loc)
		}
		return nil, err
	}
	return handle{loc: loc}, nil
}

func (c *Chrome) act(ctx context.Context, loc Locator, script string) error {
	var res string
	if err := c.run(ctx, scriptTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return err
	}
	switch res {
	case resultOK:
		return nil
	case resultMissing:
		return fmt.Errorf("%w: %s", ErrStale, loc)
	case resultHidden:
		return fmt.Errorf("%w: %s", ErrNotInteractable, loc)
	case resultNoValue:
		return fmt.Errorf("%w: %s has no such option", ErrNotFound, loc)
	}
	return fmt.Errorf("unexpected script result %q for %s", res, loc)
}

func (c *Chrome) Click(ctx context.Context, el Element) error {
	return c.act(ctx, el.Locator(), clickJS(el.Locator()))
}

func (c *Chrome) SelectOption(ctx context.Context, el Element, value string) error {
	return c.act(ctx, el.Locator(), selectJS(el.Locator(), value))
}

func (c *Chrome) Type(ctx context.Context, el Element, text string) error {
	return c.act(ctx, el.Locator(), typeJS(el.Locator(), text))
}

func (c *Chrome) CheckAll(ctx context.Context, loc Locator) (int, error) {
	var n int
	if err := c.run(ctx, scriptTimeout, chromedp.Evaluate(checkAllJS(loc), &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Chrome) ExecuteScript(ctx context.Context, script string) error {
	var ok bool
	return c.run(ctx, scriptTimeout, chromedp.Evaluate(scriptJS(script), &ok))
}

func (c *Chrome) RenderedMarkup(ctx context.Context) (string, error) {
	var markup string
	if err := c.run(ctx, scriptTimeout, chromedp.Evaluate(`document.documentElement.outerHTML`, &markup)); err != nil {
		return "", err
	}
	return markup, nil
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, scriptTimeout, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Close shuts the tab and the browser process. Safe to call more than once.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		c.cancelTab()
		c.cancelAll()
	})
	return nil
}
