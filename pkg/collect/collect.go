// Package collect drives an extractor across every page of a venue's result view.
package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tenniscourt/slotwatch/pkg/browser"
	"github.com/tenniscourt/slotwatch/pkg/extract"
	"github.com/tenniscourt/slotwatch/pkg/navigate"
	"github.com/tenniscourt/slotwatch/pkg/slot"
)

const DefaultMaxPages = 31

// Pager advances the result view. A zero Next means the view has a single page.
type Pager struct {
	Next browser.Locator `mapstructure:"next"`
	// Await, when set, must appear after each advance.
	Await    browser.Locator `mapstructure:"await"`
	Settle   time.Duration   `mapstructure:"settle"`
	MaxPages int             `mapstructure:"max_pages"`
}

// Drill opens each calendar day before extraction. In Open's locators, name and value,
// {id} is replaced by the day's cell id and {date} by its YYYYMMDD form.
type Drill struct {
	Open navigate.Step `mapstructure:"open"`
}

// Stats adds paging counters to the extraction counters.
type Stats struct {
	extract.Stats
	Pages int
	Days  int
}

// Collector gathers records from the current result view onward.
type Collector struct {
	Exec      *navigate.Executor
	Extractor extract.Extractor
	View      extract.View
	Pager     Pager
	Drill     *Drill
	// Wanted limits which calendar days are drilled into. Nil drills every open day.
	Wanted func(date time.Time) bool
	Log    navigate.Logger
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

func (c *Collector) log() navigate.Logger {
	if c.Log == nil {
		return nopLogger{}
	}
	return c.Log
}

// Collect extracts the current page, advances, and repeats until the next control is
// gone or not interactable, the page stops changing, or MaxPages is reached.
func (c *Collector) Collect(ctx context.Context) ([]slot.Record, Stats, error) {
	var (
		all   []slot.Record
		stats Stats
		prev  string
	)
	driver := c.Exec.Driver
	maxPages := c.Pager.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	for {
		markup, err := driver.RenderedMarkup(ctx)
		if err != nil {
			return all, stats, fmt.Errorf("capturing page %d: %w", stats.Pages+1, err)
		}
		if stats.Pages > 0 && markup == prev {
			c.log().Infof("page %d did not change after advancing, stopping", stats.Pages+1)
			break
		}
		prev = markup
		stats.Pages++

		recs, err := c.page(ctx, markup, &stats)
		all = append(all, recs...)
		switch {
		case errors.Is(err, extract.ErrNoDateMarker):
			c.log().Warnf("page %d: %v, skipping it", stats.Pages, err)
			stats.Dropped++
		case err != nil:
			return all, stats, err
		}

		if c.Pager.Next.IsZero() || stats.Pages >= maxPages {
			break
		}
		more, err := c.advance(ctx)
		if err != nil {
			return all, stats, err
		}
		if !more {
			break
		}
	}
	stats.Records = len(all)
	return all, stats, nil
}

func (c *Collector) view() extract.View {
	v := c.View
	if v.Reference.IsZero() {
		v.Reference = time.Now().In(slot.Tokyo)
	}
	return v
}

func (c *Collector) page(ctx context.Context, markup string, stats *Stats) ([]slot.Record, error) {
	lister, ok := c.Extractor.(extract.DayLister)
	if c.Drill == nil || !ok {
		recs, st, err := c.Extractor.Extract(markup, c.view())
		stats.Add(st)
		return recs, err
	}

	days, st, err := lister.Days(markup, c.view())
	stats.Add(st)
	if err != nil {
		return nil, err
	}
	var out []slot.Record
	for _, day := range days {
		if !day.Status.Available() {
			continue
		}
		if c.Wanted != nil && !c.Wanted(day.Date) {
			c.log().Debugf("skipping %s", day.Date.Format("2006-01-02"))
			continue
		}
		recs, err := c.day(ctx, day, stats)
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (c *Collector) day(ctx context.Context, day extract.Day, stats *Stats) ([]slot.Record, error) {
	step := expand(c.Drill.Open, day)
	if err := c.Exec.Execute(ctx, step); err != nil {
		if errors.Is(err, browser.ErrClosed) || ctx.Err() != nil {
			return nil, err
		}
		c.log().Warnf("could not open %s, dropping it: %v", day.Date.Format("2006-01-02"), err)
		stats.Dropped++
		return nil, nil
	}
	stats.Days++

	markup, err := c.Exec.Driver.RenderedMarkup(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing %s: %w", day.Date.Format("2006-01-02"), err)
	}
	v := c.view()
	v.Date = day.Date
	recs, st, err := c.Extractor.Extract(markup, v)
	stats.Add(st)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// advance clicks the next control. It reports false when the control is missing or not
// interactable, which is how the portals mark the last page. A stale or slow control is
// retried; one that never settles fails the collection instead of cutting it short.
func (c *Collector) advance(ctx context.Context) (bool, error) {
	driver := c.Exec.Driver
	err := c.Exec.Retry(ctx, "next page", func() error {
		// Look the control up again each time; a re-rendered page replaces it.
		el, err := driver.FindElement(ctx, c.Pager.Next)
		if err != nil {
			return err
		}
		return driver.Click(ctx, el)
	})
	switch {
	case errors.Is(err, browser.ErrNotFound):
		c.log().Infof("no next control after page, end of data")
		return false, nil
	case errors.Is(err, browser.ErrNotInteractable):
		c.log().Infof("next control not interactable, end of data")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("advancing to the next page: %w", err)
	}

	if !c.Pager.Await.IsZero() {
		wait := navigate.Step{Name: "next page", Action: navigate.ActionWait, Await: c.Pager.Await, Settle: c.Pager.Settle}
		if err := c.Exec.Execute(ctx, wait); err != nil {
			return false, err
		}
		return true, nil
	}
	if c.Pager.Settle > 0 {
		if err := c.Exec.Pause(ctx, c.Pager.Settle); err != nil {
			return false, err
		}
	}
	return true, nil
}

func expand(s navigate.Step, day extract.Day) navigate.Step {
	r := strings.NewReplacer("{id}", day.CellID, "{date}", day.Date.Format("20060102"))
	s.Name = r.Replace(s.Name)
	s.Value = r.Replace(s.Value)
	s.Target.Value = r.Replace(s.Target.Value)
	s.Await.Value = r.Replace(s.Await.Value)
	return s
}
