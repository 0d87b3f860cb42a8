// Package watch runs one venue end to end: navigate, collect, filter, format, compare,
// then notify and persist when the availability changed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tenniscourt/slotwatch/pkg/browser"
	"github.com/tenniscourt/slotwatch/pkg/collect"
	"github.com/tenniscourt/slotwatch/pkg/extract"
	"github.com/tenniscourt/slotwatch/pkg/holiday"
	"github.com/tenniscourt/slotwatch/pkg/navigate"
	"github.com/tenniscourt/slotwatch/pkg/notify"
	"github.com/tenniscourt/slotwatch/pkg/slot"
	"github.com/tenniscourt/slotwatch/pkg/snapshot"
	"github.com/tenniscourt/slotwatch/pkg/venues"
)

// NoAvailability is the body sent when every slot has gone.
const NoAvailability = "現在空きはありません"

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger = navigate.Logger

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Config holds everything Run needs for a single venue.
type Config struct {
	Venue      venues.Venue
	Driver     browser.Driver
	Dispatcher notify.Dispatcher
	Store      *snapshot.Store
	Calendar   holiday.Calendar
	Recipients []string

	// PersistOnFailure writes the new snapshot even when dispatch failed. Off by
	// default, so the next run detects the change again and re-sends.
	PersistOnFailure bool

	Watchdog    time.Duration // defaults to navigate.DefaultWatchdog
	ReloadDelay time.Duration
	Timeout     time.Duration // per step; zero keeps the executor default
	Retries     int
	// Sleep replaces every wait the executor makes. Tests use it to skip backoffs.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	Log   Logger // optional; nil = no logging
}

// Result holds the outcome of one run.
type Result struct {
	Outcome  Outcome
	Snapshot string
	Previous string
	Added    []string
	Removed  []string
	Stats    collect.Stats
	Notified bool
	// FailedStep names the navigation step that aborted the run, if any.
	FailedStep string
}

// Canonical renders the records worth reporting for v: only available slots that pass
// the venue's policy, in canonical order.
func Canonical(v venues.Venue, cal holiday.Calendar, recs []slot.Record) (string, error) {
	policy, err := v.Policy(cal)
	if err != nil {
		return "", err
	}
	opts, err := v.FormatOptions()
	if err != nil {
		return "", err
	}
	available := make([]slot.Record, 0, len(recs))
	for _, r := range recs {
		if r.Status.Available() {
			available = append(available, r)
		}
	}
	return snapshot.Format(policy.Apply(available), opts), nil
}

// Body is the notification text for a canonical snapshot.
func Body(v venues.Venue, canonical string) string {
	if canonical == "" {
		canonical = NoAvailability
	}
	title := v.Title
	if title == "" {
		title = v.Name
	}
	return fmt.Sprintf("%sの空き状況が更新されました。\n\n%s\n\n%s\n", title, canonical, v.BaseURL)
}

// Run performs one monitoring pass. The returned Result is never nil; its Outcome
// agrees with Classify(err) for every error path.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	result := &Result{}
	fail := func(err error) (*Result, error) {
		result.Outcome = Classify(err)
		return result, err
	}
	if cfg.Store == nil {
		return fail(errors.New("no snapshot store"))
	}
	if cfg.Dispatcher == nil {
		return fail(errors.New("no dispatcher"))
	}

	prev, err := cfg.Store.Read()
	if err != nil {
		return fail(err)
	}
	result.Previous = prev

	started := now().In(slot.Tokyo)
	venue := cfg.Venue.Resolve(started)
	extractor, err := extract.New(venue.Extractor)
	if err != nil {
		return fail(err)
	}
	policy, err := venue.Policy(cfg.Calendar)
	if err != nil {
		return fail(err)
	}

	exec := navigate.NewExecutor(cfg.Driver, log)
	if cfg.Timeout > 0 {
		exec.Timeout = cfg.Timeout
	}
	if cfg.Retries > 0 {
		exec.Retries = cfg.Retries
	}
	if cfg.Sleep != nil {
		exec.Sleep = cfg.Sleep
	}

	plan := venue.Plan(cfg.Watchdog)
	plan.ReloadDelay = cfg.ReloadDelay
	machine := navigate.NewMachine(exec, plan)
	log.Infof("Navigating %s", venue.BaseURL)
	if err := machine.Run(ctx); err != nil {
		result.FailedStep = machine.FailedStep()
		return fail(err)
	}

	collector := &collect.Collector{
		Exec:      exec,
		Extractor: extractor,
		View:      extract.View{Reference: started, Facility: venue.Facility},
		Pager:     venue.Paging,
		Drill:     venue.DayDrill,
		Wanted:    policy.MayKeep,
		Log:       log,
	}
	recs, stats, err := collector.Collect(ctx)
	result.Stats = stats
	if err != nil {
		return fail(err)
	}
	log.Infof("Collected %d record(s) over %d page(s), %d unit(s) dropped", stats.Records, stats.Pages, stats.Dropped)

	canonical, err := Canonical(venue, cfg.Calendar, recs)
	if err != nil {
		return fail(err)
	}
	result.Snapshot = canonical

	if snapshot.Detect(prev, canonical) == snapshot.Unchanged {
		log.Infof("No change in availability")
		result.Outcome = Unchanged
		return result, nil
	}

	result.Added, result.Removed = snapshot.Diff(prev, canonical)
	for _, l := range result.Added {
		log.Infof("+ %s", l)
	}
	for _, l := range result.Removed {
		log.Infof("- %s", l)
	}

	sendErr := cfg.Dispatcher.Send(ctx, venue.MailSubject(), Body(venue, canonical), cfg.Recipients)
	if sendErr != nil {
		log.Errorf("Notification failed: %v", sendErr)
		if !cfg.PersistOnFailure {
			return fail(sendErr)
		}
	} else {
		result.Notified = true
		log.Infof("Notification sent")
	}

	if err := cfg.Store.Write(canonical); err != nil {
		return fail(fmt.Errorf("saving snapshot: %w", err))
	}
	if sendErr != nil {
		return fail(sendErr)
	}
	result.Outcome = Changed
	return result, nil
}
