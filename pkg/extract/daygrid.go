package extract

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/tenniscourt/slotwatch/pkg/slot"
)

func init() {
	Register("daygrid", newDayGrid)
}

const (
	defaultDaySelector       = "li.day#li"
	defaultDayHeaderSelector = "thead tr th[id^='td10_']"
	defaultDayCellSelector   = "td[id^='td11_'], td[id^='td12_'], td[id^='td13_'], td[id^='td14_'], td[id^='td15_'], td[id^='td16_']"
)

// dayGrid reads a single day laid out as facility rows by time-range columns, with the
// day printed once above the table in the Japanese era calendar.
type dayGrid struct {
	icons   StatusTable
	date    string
	headers string
	cells   string
}

func newDayGrid(cfg Config) (Extractor, error) {
	icons, err := NewStatusTable(cfg.Icons)
	if err != nil {
		return nil, err
	}
	if icons.Empty() {
		icons, _ = NewStatusTable(Icons{Src: map[string]string{
			"icon_timetable_O.gif":       "open",
			"icon_timetable_sankaku.gif": "partial",
			"icon_timetable_X.gif":       "booked",
		}})
	}
	g := &dayGrid{
		icons:   icons,
		date:    cfg.DateSelector,
		headers: cfg.HeaderSelector,
		cells:   cfg.CellSelector,
	}
	if g.date == "" {
		g.date = defaultDaySelector
	}
	if g.headers == "" {
		g.headers = defaultDayHeaderSelector
	}
	if g.cells == "" {
		g.cells = defaultDayCellSelector
	}
	return g, nil
}

func (g *dayGrid) Name() string { return "daygrid" }

func (g *dayGrid) Extract(markup string, view View) ([]slot.Record, Stats, error) {
	var stats Stats
	doc, err := parse(markup)
	if err != nil {
		return nil, stats, err
	}

	date, err := ParseEraDate(text(doc.Find(g.date).First()))
	if err != nil {
		return nil, stats, err
	}
	headers := parseHeaders(doc.Find(g.headers))

	var out []slot.Record
	doc.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		facility := text(row.Find("th strong").First())
		if facility == "" {
			return
		}
		row.Find(g.cells).Each(func(i int, td *goquery.Selection) {
			status, ok := g.icons.Classify(td)
			if !ok {
				return
			}
			stats.Units++
			if status == slot.Unknown || i >= len(headers) || headers[i] == nil {
				stats.Dropped++
				return
			}
			out = append(out, slot.Record{
				Date:     date,
				Facility: facility,
				Range:    *headers[i],
				Status:   status,
			})
		})
	})
	stats.Records = len(out)
	return out, stats, nil
}
