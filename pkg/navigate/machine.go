package navigate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tenniscourt/slotwatch/pkg/browser"
)

const (
	DefaultWatchdog    = 5 * time.Minute
	DefaultReloadDelay = 2 * time.Second
)

// State is where the machine is in the navigation flow.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateNavigating
	StateResultsReady
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateNavigating:
		return "navigating"
	case StateResultsReady:
		return "results-ready"
	default:
		return "fatal"
	}
}

// Suspension describes the out-of-service notice a portal shows instead of its UI.
type Suspension struct {
	// Selector scopes the search; the whole body is searched when empty.
	Selector string `mapstructure:"selector"`
	Text     string `mapstructure:"text"`
}

// Plan is everything the machine needs to carry one venue to its result screen.
type Plan struct {
	URL   string
	Ready browser.Locator
	// LoadTimeout bounds each wait for Ready; the whole reload loop is bounded by Watchdog.
	LoadTimeout time.Duration
	Watchdog    time.Duration
	ReloadDelay time.Duration
	Suspension  Suspension
	Steps       []Step
	// Results, when set, is awaited after the last step.
	Results browser.Locator
}

// Machine sequences a Plan's steps through an Executor.
type Machine struct {
	exec  *Executor
	plan  Plan
	state State
	step  int
	fail  string
}

func NewMachine(exec *Executor, plan Plan) *Machine {
	return &Machine{exec: exec, plan: plan, state: StateIdle, step: -1}
}

func (m *Machine) State() State { return m.state }

// Step is the index of the step being (or last) executed, -1 before navigation starts.
func (m *Machine) Step() int { return m.step }

// FailedStep names the step that sent the machine to StateFatal.
func (m *Machine) FailedStep() string { return m.fail }

func (m *Machine) fatal(name string, err error) error {
	m.state = StateFatal
	m.fail = name
	return err
}

// Run drives the plan to StateResultsReady or StateFatal.
func (m *Machine) Run(ctx context.Context) error {
	if m.state != StateIdle {
		return fmt.Errorf("machine already ran (state %s)", m.state)
	}
	log := m.exec.logger()

	m.state = StateLoading
	if err := m.load(ctx); err != nil {
		return m.fatal("load", err)
	}

	m.state = StateNavigating
	for i, s := range m.plan.Steps {
		m.step = i
		err := m.exec.Execute(ctx, s)
		if err == nil {
			continue
		}
		if !IsCritical(err) {
			log.Warnf("skipping optional step: %v", err)
			continue
		}
		return m.fatal(s.String(), err)
	}

	if !m.plan.Results.IsZero() {
		results := Step{Name: "results", Action: ActionWait, Await: m.plan.Results}
		if err := m.exec.Execute(ctx, results); err != nil {
			return m.fatal(results.Name, err)
		}
	}
	m.state = StateResultsReady
	return nil
}

func (m *Machine) load(ctx context.Context) error {
	log := m.exec.logger()
	watchdog := m.plan.Watchdog
	if watchdog <= 0 {
		watchdog = DefaultWatchdog
	}
	reload := m.plan.ReloadDelay
	if reload <= 0 {
		reload = DefaultReloadDelay
	}
	timeout := m.plan.LoadTimeout
	if timeout <= 0 {
		timeout = m.exec.timeout(Step{})
	}

	loadCtx, cancel := context.WithTimeout(ctx, watchdog)
	defer cancel()

	checked := false
	for attempt := 1; ; attempt++ {
		err := m.exec.Driver.Navigate(loadCtx, m.plan.URL)
		if err == nil {
			if !checked {
				// Suspended portals may never show the ready marker, so look once
				// right after the first page arrives.
				checked = true
				if m.suspended(loadCtx) {
					return ErrServiceSuspended
				}
			}
			if m.plan.Ready.IsZero() {
				return nil
			}
			_, err = m.exec.Driver.WaitFor(loadCtx, m.plan.Ready, browser.ConditionVisible, timeout)
			if err == nil {
				log.Debugf("initial page ready after %d attempt(s)", attempt)
				return nil
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if loadCtx.Err() != nil {
			return fmt.Errorf("%w after %d attempt(s): %v", ErrLoadTimeout, attempt, err)
		}
		if errors.Is(err, browser.ErrClosed) {
			return err
		}
		log.Warnf("initial page not ready (attempt %d), reloading: %v", attempt, err)
		if err := m.exec.sleep(loadCtx, reload); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w after %d attempt(s)", ErrLoadTimeout, attempt)
		}
	}
}

func (m *Machine) suspended(ctx context.Context) bool {
	sus := m.plan.Suspension
	if sus.Text == "" {
		return false
	}
	markup, err := m.exec.Driver.RenderedMarkup(ctx)
	if err != nil {
		m.exec.logger().Debugf("suspension check skipped: %v", err)
		return false
	}
	return Suspended(markup, sus)
}

// Suspended reports whether markup carries the suspension notice.
func Suspended(markup string, sus Suspension) bool {
	if sus.Text == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.Contains(markup, sus.Text)
	}
	sel := sus.Selector
	if sel == "" {
		sel = "body"
	}
	found := false
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.Contains(s.Text(), sus.Text)
		return !found
	})
	return found
}
