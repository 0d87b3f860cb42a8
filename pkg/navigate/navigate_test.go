package navigate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tenniscourt/slotwatch/pkg/browser"
	"github.com/tenniscourt/slotwatch/pkg/browser/fake"
)

func newTestExecutor(d browser.Driver) (*Executor, *[]time.Duration) {
	var slept []time.Duration
	e := NewExecutor(d, nil)
	e.Backoff = func(int) time.Duration { return time.Second }
	e.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return e, &slept
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	d := fake.New()
	btn, next := browser.ID("button0"), browser.ID("id0")
	d.Show(btn)
	d.Then(btn, func(d *fake.Driver) error { d.Show(next); return nil })

	e, slept := newTestExecutor(d)
	err := e.Execute(context.Background(), Step{Name: "open", Target: btn, Await: next})
	require.NoError(t, err)
	require.Equal(t, 1, d.Clicks[btn.String()])
	require.Empty(t, *slept)
}

func TestExecuteExhaustsExactRetryBudget(t *testing.T) {
	for _, budget := range []int{1, 3, 5} {
		d := fake.New()
		btn, never := browser.ID("btnOK"), browser.ID("never")
		d.Show(btn)

		e, slept := newTestExecutor(d)
		err := e.Execute(context.Background(), Step{Name: "ok", Target: btn, Await: never, Retries: budget})

		var sf *StepFailedError
		require.ErrorAs(t, err, &sf)
		require.Equal(t, "ok", sf.Step)
		require.True(t, sf.Critical)
		require.Equal(t, budget, sf.Attempts)
		require.ErrorIs(t, err, ErrTransientLoadTimeout)
		require.Equal(t, budget, d.Clicks[btn.String()])
		require.Equal(t, budget, d.Waits[never.String()])
		require.Len(t, *slept, budget-1)
	}
}

func TestExecuteDefaultBudgetIsThree(t *testing.T) {
	d := fake.New()
	e, _ := newTestExecutor(d)
	err := e.Execute(context.Background(), Step{Action: ActionWait, Await: browser.ID("results")})
	var sf *StepFailedError
	require.ErrorAs(t, err, &sf)
	require.Equal(t, 3, sf.Attempts)
	require.Equal(t, 3, d.Waits[browser.ID("results").String()])
}

func TestExecuteRecoversFromTransientFailures(t *testing.T) {
	d := fake.New()
	btn, next := browser.ID("nextButton"), browser.CSS("#filter-by-day")
	d.Show(btn, next)
	d.FailWaits[next.String()] = 2

	e, slept := newTestExecutor(d)
	require.NoError(t, e.Execute(context.Background(), Step{Target: btn, Await: next}))
	require.Equal(t, 3, d.Clicks[btn.String()])
	require.Equal(t, []time.Duration{time.Second, time.Second}, *slept)
}

func TestExecuteStaleAddsExtraBackoff(t *testing.T) {
	d := fake.New()
	btn := browser.XPath("//a[@title='テニス']")
	d.Show(btn)
	d.StaleClicks[btn.String()] = 1

	e, slept := newTestExecutor(d)
	e.StaleBackoff = 250 * time.Millisecond
	require.NoError(t, e.Execute(context.Background(), Step{Target: btn}))
	require.Equal(t, []time.Duration{time.Second + 250*time.Millisecond}, *slept)
}

func TestExecuteOptionalStepIsNotCritical(t *testing.T) {
	d := fake.New()
	e, _ := newTestExecutor(d)
	err := e.Execute(context.Background(), Step{Name: "expand", Target: browser.CSS(".span-icon-down"), Optional: true, Retries: 2})
	var sf *StepFailedError
	require.ErrorAs(t, err, &sf)
	require.False(t, sf.Critical)
	require.False(t, IsCritical(err))
	require.Equal(t, 2, sf.Attempts)
}

func TestExecuteClosedSessionIsFatal(t *testing.T) {
	d := fake.New()
	btn := browser.ID("btn-go")
	d.Show(btn)
	d.Close()

	e, slept := newTestExecutor(d)
	err := e.Execute(context.Background(), Step{Target: btn, Optional: true})
	require.True(t, IsCritical(err))
	require.ErrorIs(t, err, browser.ErrClosed)
	require.Empty(t, *slept)
}

func TestExecuteScriptErrorIsNotRetried(t *testing.T) {
	d := fake.New()
	btn := browser.ID("btn-search")
	d.Show(btn)
	d.Then(btn, func(*fake.Driver) error { return errors.New("ReferenceError: doSearch is not defined") })

	e, slept := newTestExecutor(d)
	err := e.Execute(context.Background(), Step{Name: "search", Target: btn})
	var sf *StepFailedError
	require.ErrorAs(t, err, &sf)
	require.Equal(t, 1, sf.Attempts)
	require.True(t, sf.Critical)
	require.Contains(t, err.Error(), "doSearch")
	require.Equal(t, 1, d.Clicks[btn.String()])
	require.Empty(t, *slept)

	err = e.Execute(context.Background(), Step{Name: "search", Target: btn, Optional: true})
	require.False(t, IsCritical(err))
	require.Equal(t, 2, d.Clicks[btn.String()])
}

func TestRetryRetriesOnlyStaleAndTimeout(t *testing.T) {
	e, slept := newTestExecutor(fake.New())
	e.StaleBackoff = 250 * time.Millisecond
	ctx := context.Background()

	calls := 0
	err := e.Retry(ctx, "next page", func() error {
		calls++
		if calls == 1 {
			return browser.ErrStale
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, []time.Duration{time.Second + 250*time.Millisecond}, *slept)

	calls = 0
	err = e.Retry(ctx, "next page", func() error { calls++; return browser.ErrNotInteractable })
	require.ErrorIs(t, err, browser.ErrNotInteractable)
	require.Equal(t, 1, calls)

	calls = 0
	err = e.Retry(ctx, "next page", func() error { calls++; return browser.ErrTimeout })
	require.ErrorIs(t, err, browser.ErrTimeout)
	require.Equal(t, DefaultRetries, calls)
}

func TestAttemptActions(t *testing.T) {
	d := fake.New()
	sel, input, boxes := browser.ID("purpose-home"), browser.ID("keyword"), browser.XPath("//input[@name='chkbox']")
	d.Show(sel, input, boxes)
	d.Checked[boxes.String()] = 7

	e, _ := newTestExecutor(d)
	ctx := context.Background()
	require.Equal(t, Success, e.Attempt(ctx, Step{Target: sel, Action: ActionSelect, Value: "1000_1030"}).Kind)
	require.Equal(t, Success, e.Attempt(ctx, Step{Target: input, Action: ActionType, Value: "テニス"}).Kind)
	require.Equal(t, Success, e.Attempt(ctx, Step{Target: boxes, Action: ActionCheckAll}).Kind)
	require.Equal(t, Success, e.Attempt(ctx, Step{Action: ActionScript, Value: "dateClick(1)"}).Kind)

	require.Equal(t, "1000_1030", d.Selected[sel.String()])
	require.Equal(t, "テニス", d.Typed[input.String()])
	require.Equal(t, 0, d.Checked[boxes.String()])
	require.Equal(t, []string{"dateClick(1)"}, d.Scripts)

	r := e.Attempt(ctx, Step{Target: browser.ID("gone")})
	require.Equal(t, Retryable, r.Kind)
}

func TestStepValidate(t *testing.T) {
	require.NoError(t, Step{Target: browser.ID("a")}.Validate())
	require.NoError(t, Step{Action: ActionScript, Value: "x()"}.Validate())
	require.Error(t, Step{Action: ActionSelect}.Validate())
	require.Error(t, Step{Action: ActionWait}.Validate())
	require.Error(t, Step{Action: "hover", Target: browser.ID("a")}.Validate())
}

func TestMachineReachesResults(t *testing.T) {
	d := fake.New()
	ready, a, b, results := browser.ID("contents"), browser.ID("button3"), browser.ID("id0"), browser.ID("results")
	d.OnNavigate = func(d *fake.Driver, url string) error { d.Show(ready, a); return nil }
	d.Then(a, func(d *fake.Driver) error { d.Show(b); return nil })
	d.Then(b, func(d *fake.Driver) error { d.Show(results); return nil })

	e, _ := newTestExecutor(d)
	m := NewMachine(e, Plan{
		URL:     "https://portal.example/reserve",
		Ready:   ready,
		Steps:   []Step{{Target: a, Await: b}, {Target: b}},
		Results: results,
	})
	require.Equal(t, StateIdle, m.State())
	require.NoError(t, m.Run(context.Background()))
	require.Equal(t, StateResultsReady, m.State())
	require.Equal(t, 1, m.Step())
	require.Error(t, m.Run(context.Background()))
}

func TestMachineCriticalStepIsFatal(t *testing.T) {
	d := fake.New()
	ready := browser.ID("contents")
	d.OnNavigate = func(d *fake.Driver, url string) error { d.Show(ready); return nil }

	e, _ := newTestExecutor(d)
	m := NewMachine(e, Plan{
		URL:   "https://portal.example/reserve",
		Ready: ready,
		Steps: []Step{{Name: "tennis", Target: browser.XPath("//a[@title='テニス']")}},
	})
	err := m.Run(context.Background())
	require.True(t, IsCritical(err))
	require.Equal(t, StateFatal, m.State())
	require.Equal(t, "tennis", m.FailedStep())
}

func TestMachineSkipsOptionalStep(t *testing.T) {
	d := fake.New()
	ready, last := browser.ID("btn-go"), browser.ID("loadedmonth")
	d.OnNavigate = func(d *fake.Driver, url string) error { d.Show(ready, last); return nil }

	e, _ := newTestExecutor(d)
	m := NewMachine(e, Plan{
		URL:   "https://portal.example/",
		Ready: ready,
		Steps: []Step{
			{Name: "expand", Target: browser.CSS(".span-icon-down"), Optional: true},
			{Name: "month", Action: ActionWait, Await: last},
		},
	})
	require.NoError(t, m.Run(context.Background()))
	require.Equal(t, StateResultsReady, m.State())
}

func TestMachineReloadsUntilReady(t *testing.T) {
	d := fake.New()
	ready := browser.ID("contents")
	d.FailNavigate = 2
	d.OnNavigate = func(d *fake.Driver, url string) error { d.Show(ready); return nil }

	e, _ := newTestExecutor(d)
	m := NewMachine(e, Plan{URL: "https://portal.example/", Ready: ready})
	require.NoError(t, m.Run(context.Background()))
	require.Len(t, d.Navigated, 3)
}

func TestMachineWatchdogBoundsInitialLoad(t *testing.T) {
	d := fake.New()
	e, _ := newTestExecutor(d)
	e.Sleep = Sleep

	m := NewMachine(e, Plan{
		URL:         "https://portal.example/",
		Ready:       browser.ID("contents"),
		Watchdog:    50 * time.Millisecond,
		ReloadDelay: 5 * time.Millisecond,
	})
	err := m.Run(context.Background())
	require.ErrorIs(t, err, ErrLoadTimeout)
	require.Equal(t, StateFatal, m.State())
	require.Equal(t, "load", m.FailedStep())
	require.Greater(t, len(d.Navigated), 1)
}

func TestMachineServiceSuspended(t *testing.T) {
	d := fake.New()
	d.Markup = `<html><body><div id="inner-contents"><p>本日はサービス休止日となっております。</p></div></body></html>`

	e, _ := newTestExecutor(d)
	m := NewMachine(e, Plan{
		URL:        "https://portal.example/",
		Ready:      browser.ID("contents"),
		Suspension: Suspension{Selector: "#inner-contents", Text: "本日はサービス休止日となっております"},
	})
	err := m.Run(context.Background())
	require.True(t, errors.Is(err, ErrServiceSuspended))
	require.Len(t, d.Navigated, 1)
	require.Equal(t, StateFatal, m.State())
}

func TestSuspendedScopesToSelector(t *testing.T) {
	sus := Suspension{Selector: "#inner-contents", Text: "休止"}
	require.False(t, Suspended(`<div id="news">休止</div><div id="inner-contents">ok</div>`, sus))
	require.True(t, Suspended(`<div id="inner-contents">本日は休止</div>`, sus))
	require.True(t, Suspended(`<p>本日は休止</p>`, Suspension{Text: "休止"}))
	require.False(t, Suspended(`<p>本日は休止</p>`, Suspension{}))
}
