// Package extract turns rendered portal markup into slot records. Each portal family has
// its own strategy; everything downstream only sees slot.Record.
package extract

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tenniscourt/slotwatch/pkg/slot"
)

// ErrNoDateMarker means the view carried no date the strategy could read. Nothing on
// such a page is emitted.
var ErrNoDateMarker = errors.New("no date marker")

// View is the context a page was captured in.
type View struct {
	// Reference is "now" for strategies that must infer a year.
	Reference time.Time
	// Facility names the court when the markup itself does not.
	Facility string
	// Date restricts a day-detail extraction to one day. Zero means no restriction.
	Date time.Time
}

// Stats counts what an extraction looked at.
type Stats struct {
	Units   int
	Records int
	Dropped int
}

func (s *Stats) Add(o Stats) {
	s.Units += o.Units
	s.Records += o.Records
	s.Dropped += o.Dropped
}

// Extractor reads one captured view.
type Extractor interface {
	Name() string
	Extract(markup string, view View) ([]slot.Record, Stats, error)
}

// Day is one entry of a month calendar.
type Day struct {
	Date   time.Time
	Status slot.Status
	// CellID is the id of the calendar cell that opens the day's detail.
	CellID string
}

// DayLister is implemented by strategies whose result view is a calendar that must be
// drilled into day by day.
type DayLister interface {
	Days(markup string, view View) ([]Day, Stats, error)
}

// Icons maps icon alt texts and src fragments to status names (open, partial, booked).
// Keys are matched case-insensitively.
type Icons struct {
	Alt map[string]string `mapstructure:"alt"`
	Src map[string]string `mapstructure:"src"`
}

// Config selects and parameterizes a strategy.
type Config struct {
	Strategy string `mapstructure:"strategy"`
	Icons    Icons  `mapstructure:"icons"`
	// TimeCodes maps slot id suffixes ("10", "20", ...) to time ranges.
	TimeCodes      map[string]string `mapstructure:"time_codes"`
	DateSelector   string            `mapstructure:"date_selector"`
	HeaderSelector string            `mapstructure:"header_selector"`
	CellSelector   string            `mapstructure:"cell_selector"`
}

// StatusTable is the compiled form of Icons.
type StatusTable struct {
	alt map[string]slot.Status
	src []srcEntry
}

type srcEntry struct {
	fragment string
	status   slot.Status
}

func NewStatusTable(icons Icons) (StatusTable, error) {
	t := StatusTable{alt: map[string]slot.Status{}}
	for k, v := range icons.Alt {
		s, err := slot.ParseStatus(v)
		if err != nil {
			return t, fmt.Errorf("icon alt %q: %w", k, err)
		}
		t.alt[strings.ToLower(strings.TrimSpace(k))] = s
	}
	for k, v := range icons.Src {
		s, err := slot.ParseStatus(v)
		if err != nil {
			return t, fmt.Errorf("icon src %q: %w", k, err)
		}
		t.src = append(t.src, srcEntry{fragment: strings.ToLower(k), status: s})
	}
	// Longest fragment first so "icon_o.gif" cannot shadow "icon_open.gif".
	sort.Slice(t.src, func(i, j int) bool {
		if len(t.src[i].fragment) != len(t.src[j].fragment) {
			return len(t.src[i].fragment) > len(t.src[j].fragment)
		}
		return t.src[i].fragment < t.src[j].fragment
	})
	return t, nil
}

// Empty reports whether the table has no entries at all.
func (t StatusTable) Empty() bool {
	return len(t.alt) == 0 && len(t.src) == 0
}

// Lookup classifies an icon by its alt text first, then by its src.
func (t StatusTable) Lookup(alt, src string) slot.Status {
	if s, ok := t.alt[strings.ToLower(strings.TrimSpace(alt))]; ok && alt != "" {
		return s
	}
	src = strings.ToLower(src)
	for _, e := range t.src {
		if src != "" && strings.Contains(src, e.fragment) {
			return e.status
		}
	}
	return slot.Unknown
}

// Classify looks at the first img inside sel. ok is false when there is no icon at all.
func (t StatusTable) Classify(sel *goquery.Selection) (status slot.Status, ok bool) {
	img := sel.Find("img").First()
	if img.Length() == 0 {
		if goquery.NodeName(sel) != "img" {
			return slot.Unknown, false
		}
		img = sel
	}
	alt, _ := img.Attr("alt")
	src, _ := img.Attr("src")
	return t.Lookup(alt, src), true
}

// Factory builds a strategy from its configuration.
type Factory func(cfg Config) (Extractor, error)

var registry = map[string]Factory{}

// Register makes a strategy available to New under name.
func Register(name string, f Factory) {
	registry[name] = f
}

// Names lists registered strategies.
func Names() []string {
	var names []string
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the strategy cfg names.
func New(cfg Config) (Extractor, error) {
	f, ok := registry[cfg.Strategy]
	if !ok {
		return nil, fmt.Errorf("unknown extraction strategy %q (have %s)", cfg.Strategy, strings.Join(Names(), ", "))
	}
	return f(cfg)
}

func parse(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parsing markup: %w", err)
	}
	return doc, nil
}

func text(sel *goquery.Selection) string {
	return slot.Fold(strings.Join(strings.Fields(sel.Text()), " "))
}

// parseHeaders reads each header as a time range; unreadable headers stay nil so column
// indexes still line up.
func parseHeaders(sel *goquery.Selection) []*slot.TimeRange {
	var out []*slot.TimeRange
	sel.Each(func(_ int, s *goquery.Selection) {
		r, err := slot.ParseTimeRange(text(s))
		if err != nil {
			out = append(out, nil)
			return
		}
		out = append(out, &r)
	})
	return out
}
