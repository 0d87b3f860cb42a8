// Package slot holds the venue-independent record every extractor produces.
package slot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// Status is what a portal's icon says about one slot.
type Status int

const (
	Unknown Status = iota
	FullyOpen
	PartiallyOpen
	Booked
)

func (s Status) String() string {
	switch s {
	case FullyOpen:
		return "open"
	case PartiallyOpen:
		return "partial"
	case Booked:
		return "booked"
	default:
		return "unknown"
	}
}

// ParseStatus accepts the names printed by String.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "fullyopen", "fully-open":
		return FullyOpen, nil
	case "partial", "partiallyopen", "partially-open":
		return PartiallyOpen, nil
	case "booked":
		return Booked, nil
	case "unknown":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown status %q", s)
}

// Available reports whether a slot with this status can still be booked.
func (s Status) Available() bool {
	return s == FullyOpen || s == PartiallyOpen
}

// TimeRange is a half-open span of the day in minutes after midnight.
type TimeRange struct {
	Start int
	End   int
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.Start/60, r.Start%60, r.End/60, r.End%60)
}

// Within reports whether r lies entirely inside w.
func (r TimeRange) Within(w TimeRange) bool {
	return r.Start >= w.Start && r.End <= w.End
}

var (
	clockRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`)
	dashes  = strings.NewReplacer("～", "-", "〜", "-", "~", "-", "－", "-", "−", "-", "ー", "-", "点", "", "時", "", " ", "")
)

// Fold converts full-width digits and punctuation to their ASCII forms.
func Fold(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}

func parseClock(s string) (int, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bad time %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	min := 0
	if m[2] != "" {
		min, _ = strconv.Atoi(m[2])
	}
	if h > 24 || min > 59 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	return h*60 + min, nil
}

// ParseTimeRange reads headers such as "09:00-11:00", "１９：００～２１：００" or "9-11点".
func ParseTimeRange(s string) (TimeRange, error) {
	norm := dashes.Replace(Fold(s))
	parts := strings.Split(norm, "-")
	if len(parts) != 2 {
		return TimeRange{}, fmt.Errorf("bad time range %q", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return TimeRange{}, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return TimeRange{}, err
	}
	if end <= start {
		return TimeRange{}, fmt.Errorf("bad time range %q: end before start", s)
	}
	return TimeRange{Start: start, End: end}, nil
}

// MustTimeRange is ParseTimeRange for literals in venue tables.
func MustTimeRange(s string) TimeRange {
	r, err := ParseTimeRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Tokyo is the zone the portals count their days in.
var Tokyo = loadTokyo()

func loadTokyo() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		// No zoneinfo on the host. Japan keeps no daylight saving.
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// Date returns midnight UTC of the given civil date, the only form Record.Date takes.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Civil drops the clock and zone from t, keeping its calendar date.
func Civil(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Record is one bookable unit seen on a portal. Records are values and never modified
// after extraction.
type Record struct {
	Date     time.Time
	Facility string
	Range    TimeRange
	Status   Status
	// Vacancies is the number of free courts when the portal shows it, 0 otherwise.
	Vacancies int
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s %s %s", r.Date.Format("2006-01-02"), r.Range, r.Facility, r.Status)
}
