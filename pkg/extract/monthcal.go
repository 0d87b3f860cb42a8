package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tenniscourt/slotwatch/pkg/slot"
)

func init() {
	Register("monthcal", newMonthCal)
}

var (
	hiddenSlotRe = regexp.MustCompile(`^A_(\d{8})_(\d{2})$`)
	cellSlotRe   = regexp.MustCompile(`^(\d{8})_(\d{2})$`)
)

// monthCal reads a month calendar whose cells carry a day-level status icon, and the
// day detail that opens when a cell is clicked. Detail slots are identified by a
// date_code id where code maps to a fixed time range.
type monthCal struct {
	icons StatusTable
	codes map[string]slot.TimeRange
	cells string
}

func newMonthCal(cfg Config) (Extractor, error) {
	icons, err := NewStatusTable(cfg.Icons)
	if err != nil {
		return nil, err
	}
	if icons.Empty() {
		icons, _ = NewStatusTable(Icons{Alt: map[string]string{
			"全て空き": "open",
			"一部空き": "partial",
			"予約あり": "booked",
			"空き":   "open",
		}})
	}
	if len(cfg.TimeCodes) == 0 {
		return nil, fmt.Errorf("monthcal: time_codes are required")
	}
	codes := make(map[string]slot.TimeRange, len(cfg.TimeCodes))
	for code, raw := range cfg.TimeCodes {
		r, err := slot.ParseTimeRange(raw)
		if err != nil {
			return nil, fmt.Errorf("monthcal: time code %s: %w", code, err)
		}
		codes[code] = r
	}
	c := &monthCal{icons: icons, codes: codes, cells: cfg.CellSelector}
	if c.cells == "" {
		c.cells = "td[id^='month_']"
	}
	return c, nil
}

func (c *monthCal) Name() string { return "monthcal" }

// Days lists every calendar cell that shows a status icon.
func (c *monthCal) Days(markup string, view View) ([]Day, Stats, error) {
	var stats Stats
	doc, err := parse(markup)
	if err != nil {
		return nil, stats, err
	}
	var days []Day
	doc.Find(c.cells).Each(func(_ int, td *goquery.Selection) {
		id, _ := td.Attr("id")
		status, ok := c.icons.Classify(td)
		if !ok {
			return
		}
		stats.Units++
		date, err := ParseCompactDate(strings.TrimPrefix(id, "month_"))
		if err != nil || status == slot.Unknown {
			stats.Dropped++
			return
		}
		days = append(days, Day{Date: date, Status: status, CellID: id})
	})
	stats.Records = len(days)
	return days, stats, nil
}

// Extract reads a day detail view. Vacancy counts come either from hidden inputs
// (A_YYYYMMDD_CC, value N) or from status cells (YYYYMMDD_CC) with the count in a span.
func (c *monthCal) Extract(markup string, view View) ([]slot.Record, Stats, error) {
	var stats Stats
	doc, err := parse(markup)
	if err != nil {
		return nil, stats, err
	}

	var out []slot.Record
	emit := func(day, code string, status slot.Status, vacancies int) {
		stats.Units++
		date, err := ParseCompactDate(day)
		r, known := c.codes[code]
		if err != nil || !known || status == slot.Unknown {
			stats.Dropped++
			return
		}
		if !view.Date.IsZero() && !date.Equal(slot.Civil(view.Date)) {
			return
		}
		out = append(out, slot.Record{
			Date:      date,
			Facility:  view.Facility,
			Range:     r,
			Status:    status,
			Vacancies: vacancies,
		})
	}

	doc.Find("input[id^='A_']").Each(func(_ int, in *goquery.Selection) {
		id, _ := in.Attr("id")
		m := hiddenSlotRe.FindStringSubmatch(id)
		if m == nil {
			return
		}
		value, _ := in.Attr("value")
		n, err := strconv.Atoi(strings.TrimSpace(value))
		status := slot.Unknown
		switch {
		case err != nil:
		case n > 0:
			status = slot.FullyOpen
		default:
			status = slot.Booked
		}
		emit(m[1], m[2], status, n)
	})

	doc.Find("td[id]").Each(func(_ int, td *goquery.Selection) {
		id, _ := td.Attr("id")
		m := cellSlotRe.FindStringSubmatch(id)
		if m == nil {
			return
		}
		status, ok := c.icons.Classify(td)
		if !ok {
			return
		}
		n, _ := strconv.Atoi(text(td.Find("span").First()))
		emit(m[1], m[2], status, n)
	})

	stats.Records = len(out)
	return out, stats, nil
}
