// Package filter decides which extracted slots are worth reporting.
package filter

import (
	"time"

	"github.com/tenniscourt/slotwatch/pkg/holiday"
	"github.com/tenniscourt/slotwatch/pkg/slot"
)

// Policy keeps every slot on a weekend or holiday, and on working days only the slots
// that fall inside one of Windows.
type Policy struct {
	Holidays holiday.Calendar
	Windows  []slot.TimeRange
}

// OffDay reports whether date is a weekend or a holiday.
func (p Policy) OffDay(date time.Time) bool {
	if holiday.IsWeekend(date) {
		return true
	}
	return p.Holidays != nil && p.Holidays.IsHoliday(date)
}

// Keep reports whether r survives the policy.
func (p Policy) Keep(r slot.Record) bool {
	if p.OffDay(r.Date) {
		return true
	}
	for _, w := range p.Windows {
		if r.Range.Within(w) {
			return true
		}
	}
	return false
}

// MayKeep reports whether any slot on date could survive. Callers use it to skip
// drilling into working days when no window is configured.
func (p Policy) MayKeep(date time.Time) bool {
	return p.OffDay(date) || len(p.Windows) > 0
}

// Apply returns the records Keep accepts. The input is not modified.
func (p Policy) Apply(recs []slot.Record) []slot.Record {
	out := make([]slot.Record, 0, len(recs))
	for _, r := range recs {
		if p.Keep(r) {
			out = append(out, r)
		}
	}
	return out
}
