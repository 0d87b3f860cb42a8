// Package holiday answers whether a date is a Japanese public holiday.
package holiday

import (
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

//go:embed holidays.json
var builtin []byte

// Calendar is the lookup the availability filter consumes.
type Calendar interface {
	IsHoliday(date time.Time) bool
}

// Table is a Calendar backed by a {"YYYY-MM-DD": "name"} document.
type Table struct {
	mu    sync.RWMutex
	days  map[string]string
	years map[int]bool
}

// New returns a Table holding the embedded calendar.
func New() *Table {
	t := &Table{days: map[string]string{}, years: map[int]bool{}}
	if err := t.Merge(builtin); err != nil {
		panic(fmt.Sprintf("embedded holiday calendar: %v", err))
	}
	return t
}

// Merge adds every entry of a JSON calendar document.
func (t *Table) Merge(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("holiday calendar is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("holiday calendar must be an object of date: name")
	}

	parsed := map[string]string{}
	var err error
	root.ForEach(func(key, value gjson.Result) bool {
		d, perr := time.Parse("2006-01-02", key.String())
		if perr != nil {
			err = fmt.Errorf("holiday calendar: bad date %q", key.String())
			return false
		}
		parsed[d.Format("2006-01-02")] = value.String()
		return true
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range parsed {
		t.days[k] = v
		y, _ := time.Parse("2006-01-02", k)
		t.years[y.Year()] = true
	}
	return nil
}

// LoadFile merges a calendar file on top of what the table already holds.
func (t *Table) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := t.Merge(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (t *Table) IsHoliday(date time.Time) bool {
	_, ok := t.Name(date)
	return ok
}

// Name returns the holiday's name.
func (t *Table) Name(date time.Time) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.days[date.Format("2006-01-02")]
	return name, ok
}

// Covers reports whether the table has any entry for year. Dates in uncovered years are
// only recognised as weekends by the filter.
func (t *Table) Covers(year int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.years[year]
}

// IsWeekend reports Saturday or Sunday.
func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
