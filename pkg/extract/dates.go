package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/tenniscourt/slotwatch/pkg/slot"
)

// EraOffsets gives westernYear = offset + eraYear for the eras portals still print.
var EraOffsets = map[string]int{
	"令和": 2018,
	"平成": 1988,
}

var (
	eraDateRe  = regexp.MustCompile(`(令和|平成)\s*(元|\d+)\s*年\s*(\d+)\s*月\s*(\d+)\s*日`)
	isoDateRe  = regexp.MustCompile(`(\d{4})[/-](\d{1,2})[/-](\d{1,2})`)
	monthDayRe = regexp.MustCompile(`(\d{1,2})/(\d{1,2})`)
	compactRe  = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
)

func civil(y, m, d int) (time.Time, error) {
	t := slot.Date(y, time.Month(m), d)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", y, m, d)
	}
	return t, nil
}

// ParseEraDate reads dates such as "令和07年2月8日(土)".
func ParseEraDate(s string) (time.Time, error) {
	m := eraDateRe.FindStringSubmatch(slot.Fold(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w in %q", ErrNoDateMarker, s)
	}
	year := 1
	if m[2] != "元" {
		year, _ = strconv.Atoi(m[2])
	}
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	return civil(EraOffsets[m[1]]+year, month, day)
}

// ParseMonthDay reads an "m/d" date without a year. The year is the one that puts the
// date closest after ref, allowing a month of look-back for pages captured around New Year.
func ParseMonthDay(s string, ref time.Time) (time.Time, error) {
	folded := slot.Fold(s)
	if m := isoDateRe.FindStringSubmatch(folded); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return civil(y, mo, d)
	}
	m := monthDayRe.FindStringSubmatch(folded)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w in %q", ErrNoDateMarker, s)
	}
	mo, _ := strconv.Atoi(m[1])
	d, _ := strconv.Atoi(m[2])
	if ref.IsZero() {
		ref = time.Now()
	}
	ref = slot.Civil(ref)
	t, err := civil(ref.Year(), mo, d)
	if err != nil {
		// Feb 29 of a year that lacks one belongs to the next year.
		return civil(ref.Year()+1, mo, d)
	}
	if t.Before(ref.AddDate(0, -1, 0)) {
		return civil(ref.Year()+1, mo, d)
	}
	return t, nil
}

// ParseCompactDate reads "20250208".
func ParseCompactDate(s string) (time.Time, error) {
	m := compactRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("bad date %q", s)
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	return civil(y, mo, d)
}
