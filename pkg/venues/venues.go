// Package venues holds the static description of every monitored portal.
package venues

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tenniscourt/slotwatch/pkg/browser"
	"github.com/tenniscourt/slotwatch/pkg/collect"
	"github.com/tenniscourt/slotwatch/pkg/extract"
	"github.com/tenniscourt/slotwatch/pkg/filter"
	"github.com/tenniscourt/slotwatch/pkg/holiday"
	"github.com/tenniscourt/slotwatch/pkg/navigate"
	"github.com/tenniscourt/slotwatch/pkg/slot"
	"github.com/tenniscourt/slotwatch/pkg/snapshot"
)

// Venue is everything needed to watch one portal. It is read-only once loaded.
type Venue struct {
	Name    string `mapstructure:"name"`
	Title   string `mapstructure:"title"`
	BaseURL string `mapstructure:"base_url"`

	Ready       browser.Locator     `mapstructure:"ready_marker"`
	Suspension  navigate.Suspension `mapstructure:"suspension"`
	LoadTimeout time.Duration       `mapstructure:"load_timeout"`
	Steps       []navigate.Step     `mapstructure:"steps"`
	Results     browser.Locator     `mapstructure:"results"`

	Extractor extract.Config `mapstructure:"extractor"`
	Paging    collect.Pager  `mapstructure:"paging"`
	DayDrill  *collect.Drill `mapstructure:"day_drill"`
	// Facility names the court on views that do not print one.
	Facility     string `mapstructure:"facility"`
	HideFacility bool   `mapstructure:"hide_facility"`

	// Windows are the time ranges kept on working days.
	Windows   []string `mapstructure:"windows"`
	TimeOrder []string `mapstructure:"time_order"`

	SnapshotPath string `mapstructure:"snapshot_path"`
	Subject      string `mapstructure:"subject"`
}

func (v Venue) String() string {
	if v.Title != "" {
		return fmt.Sprintf("%s (%s)", v.Name, v.Title)
	}
	return v.Name
}

// Validate checks what can be checked without a browser.
func (v Venue) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("venue without a name")
	}
	if v.BaseURL == "" {
		return fmt.Errorf("venue %s: base_url is required", v.Name)
	}
	for i, s := range v.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("venue %s: step %d: %w", v.Name, i+1, err)
		}
	}
	if v.DayDrill != nil {
		if err := v.DayDrill.Open.Validate(); err != nil {
			return fmt.Errorf("venue %s: day_drill: %w", v.Name, err)
		}
	}
	if _, err := extract.New(v.Extractor); err != nil {
		return fmt.Errorf("venue %s: %w", v.Name, err)
	}
	if _, err := ranges(v.Windows); err != nil {
		return fmt.Errorf("venue %s: windows: %w", v.Name, err)
	}
	if _, err := ranges(v.TimeOrder); err != nil {
		return fmt.Errorf("venue %s: time_order: %w", v.Name, err)
	}
	return nil
}

func ranges(in []string) ([]slot.TimeRange, error) {
	out := make([]slot.TimeRange, 0, len(in))
	for _, s := range in {
		r, err := slot.ParseTimeRange(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Resolve fills the {today} placeholder in step locators and values with now's date in Tokyo.
func (v Venue) Resolve(now time.Time) Venue {
	r := strings.NewReplacer("{today}", now.In(slot.Tokyo).Format("20060102"))
	steps := make([]navigate.Step, len(v.Steps))
	for i, s := range v.Steps {
		s.Name = r.Replace(s.Name)
		s.Value = r.Replace(s.Value)
		s.Target.Value = r.Replace(s.Target.Value)
		s.Await.Value = r.Replace(s.Await.Value)
		steps[i] = s
	}
	v.Steps = steps
	return v
}

// Plan returns the navigation plan. Call Resolve first.
func (v Venue) Plan(watchdog time.Duration) navigate.Plan {
	return navigate.Plan{
		URL:         v.BaseURL,
		Ready:       v.Ready,
		LoadTimeout: v.LoadTimeout,
		Watchdog:    watchdog,
		Suspension:  v.Suspension,
		Steps:       v.Steps,
		Results:     v.Results,
	}
}

// Policy builds the availability filter.
func (v Venue) Policy(cal holiday.Calendar) (filter.Policy, error) {
	windows, err := ranges(v.Windows)
	if err != nil {
		return filter.Policy{}, err
	}
	return filter.Policy{Holidays: cal, Windows: windows}, nil
}

// FormatOptions returns how the venue's canonical form is rendered.
func (v Venue) FormatOptions() (snapshot.Options, error) {
	order, err := ranges(v.TimeOrder)
	if err != nil {
		return snapshot.Options{}, err
	}
	return snapshot.Options{Order: order, HideFacility: v.HideFacility}, nil
}

// SnapshotFile resolves the snapshot path against dir.
func (v Venue) SnapshotFile(dir string) string {
	p := v.SnapshotPath
	if p == "" {
		p = "last_availability_" + v.Name + ".txt"
	}
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}

// MailSubject is the notification subject.
func (v Venue) MailSubject() string {
	if v.Subject != "" {
		return v.Subject
	}
	title := v.Title
	if title == "" {
		title = v.Name
	}
	return fmt.Sprintf("🎾 %s テニスコート空き状況更新", title)
}

// Find returns the venue called name.
func Find(list []Venue, name string) (Venue, bool) {
	for _, v := range list {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Venue{}, false
}

// Names lists venue names in order.
func Names(list []Venue) []string {
	names := make([]string, len(list))
	for i, v := range list {
		names[i] = v.Name
	}
	return names
}
