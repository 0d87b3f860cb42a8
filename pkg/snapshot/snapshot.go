// Package snapshot renders slot sets into their canonical text form and compares it with
// the last form written to disk.
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tenniscourt/slotwatch/pkg/slot"
)

var weekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// Options controls ordering and the optional columns of the canonical form.
type Options struct {
	// Order ranks time ranges within a day. Ranges missing from it sort after the listed
	// ones, by start time.
	Order []slot.TimeRange
	// HideFacility drops the facility column, for venues with a single facility.
	HideFacility bool
}

// Line renders one record.
func Line(r slot.Record, opts Options) string {
	parts := []string{
		fmt.Sprintf("%s (%s)", r.Date.Format("2006-01-02"), weekdays[r.Date.Weekday()]),
		r.Range.String(),
	}
	if r.Facility != "" && !opts.HideFacility {
		parts = append(parts, r.Facility)
	}
	if r.Vacancies > 0 {
		parts = append(parts, fmt.Sprintf("残り%d", r.Vacancies))
	}
	return strings.Join(parts, " | ")
}

func rank(order []slot.TimeRange, r slot.TimeRange) int {
	for i, o := range order {
		if o == r {
			return i
		}
	}
	return len(order)
}

// Format returns the canonical form: one line per distinct record, sorted by date, then
// by the venue's time order, joined with newlines. The input is not modified.
func Format(recs []slot.Record, opts Options) string {
	sorted := make([]slot.Record, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if ra, rb := rank(opts.Order, a.Range), rank(opts.Order, b.Range); ra != rb {
			return ra < rb
		}
		if a.Range.Start != b.Range.Start {
			return a.Range.Start < b.Range.Start
		}
		if a.Range.End != b.Range.End {
			return a.Range.End < b.Range.End
		}
		if a.Facility != b.Facility {
			return a.Facility < b.Facility
		}
		return a.Vacancies < b.Vacancies
	})

	lines := make([]string, 0, len(sorted))
	seen := make(map[string]bool, len(sorted))
	for _, r := range sorted {
		l := Line(r, opts)
		if seen[l] {
			continue
		}
		seen[l] = true
		lines = append(lines, l)
	}
	return strings.Join(lines, "\n")
}

// Change is the outcome of comparing two canonical forms.
type Change int

const (
	Unchanged Change = iota
	Changed
)

func (c Change) String() string {
	if c == Changed {
		return "changed"
	}
	return "unchanged"
}

// Detect compares the forms with surrounding whitespace stripped.
func Detect(prev, cur string) Change {
	if strings.TrimSpace(prev) == strings.TrimSpace(cur) {
		return Unchanged
	}
	return Changed
}

// Diff returns the lines only in cur (added) and only in prev (removed), each in the
// order they appear.
func Diff(prev, cur string) (added, removed []string) {
	p, c := lineSet(prev), lineSet(cur)
	for _, l := range splitLines(cur) {
		if !p[l] {
			added = append(added, l)
		}
	}
	for _, l := range splitLines(prev) {
		if !c[l] {
			removed = append(removed, l)
		}
	}
	return added, removed
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func lineSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, l := range splitLines(s) {
		set[l] = true
	}
	return set
}
