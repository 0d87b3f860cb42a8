package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/tenniscourt/slotwatch/pkg/slot"
)

func init() {
	Register("weekgrid", newWeekGrid)
}

// weekGrid reads a week table: one tbody per day with the date in its first th, and one
// column per time range named by the thead cells after the first.
type weekGrid struct {
	icons   StatusTable
	headers string
}

func newWeekGrid(cfg Config) (Extractor, error) {
	icons, err := NewStatusTable(cfg.Icons)
	if err != nil {
		return nil, err
	}
	if icons.Empty() {
		icons, _ = NewStatusTable(Icons{Alt: map[string]string{"O": "open", "△": "partial", "X": "booked", "×": "booked"}})
	}
	g := &weekGrid{icons: icons, headers: cfg.HeaderSelector}
	if g.headers == "" {
		g.headers = "thead th"
	}
	return g, nil
}

func (g *weekGrid) Name() string { return "weekgrid" }

func (g *weekGrid) Extract(markup string, view View) ([]slot.Record, Stats, error) {
	var stats Stats
	doc, err := parse(markup)
	if err != nil {
		return nil, stats, err
	}

	headerCells := doc.Find(g.headers)
	if headerCells.Length() < 2 {
		return nil, stats, fmt.Errorf("weekgrid: no time headers matched %q", g.headers)
	}
	headers := parseHeaders(headerCells.Slice(1, goquery.ToEnd))

	var out []slot.Record
	doc.Find("tbody").Each(func(_ int, body *goquery.Selection) {
		tr := body.Find("tr").First()
		th := tr.Find("th").First()
		if th.Length() == 0 {
			return
		}
		date, err := ParseMonthDay(text(th), view.Reference)
		if err != nil {
			stats.Dropped++
			return
		}
		tr.Find("td").Each(func(i int, td *goquery.Selection) {
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
				Facility: view.Facility,
				Range:    *headers[i],
				Status:   status,
			})
		})
	})
	stats.Records = len(out)
	return out, stats, nil
}
