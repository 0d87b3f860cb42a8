package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/tenniscourt/slotwatch/pkg/browser"
	"github.com/tenniscourt/slotwatch/pkg/browser/fake"
	"github.com/tenniscourt/slotwatch/pkg/extract"
	"github.com/tenniscourt/slotwatch/pkg/holiday"
	"github.com/tenniscourt/slotwatch/pkg/navigate"
	"github.com/tenniscourt/slotwatch/pkg/notify"
	"github.com/tenniscourt/slotwatch/pkg/slot"
	"github.com/tenniscourt/slotwatch/pkg/snapshot"
	"github.com/tenniscourt/slotwatch/pkg/venues"
)

type sent struct {
	subject, body string
	to            []string
}

type recorder struct {
	sent []sent
	err  error
}

func (r *recorder) Send(ctx context.Context, subject, body string, recipients []string) error {
	if r.err != nil {
		return &notify.DispatchError{Recipients: len(recipients), Err: r.err}
	}
	r.sent = append(r.sent, sent{subject, body, recipients})
	return nil
}

var (
	goButton = browser.ID("go")
	grid     = browser.ID("grid")
)

func venue() venues.Venue {
	return venues.Venue{
		Name:      "riverside",
		Title:     "Riverside",
		BaseURL:   "https://courts.example.com",
		Ready:     browser.ID("contents"),
		Steps:     []navigate.Step{{Name: "search", Target: goButton, Await: grid}},
		Extractor: extract.Config{Strategy: "daygrid"},
		Windows:   []string{"19:00-21:00"},
		TimeOrder: []string{"09:00-11:00", "19:00-21:00"},
	}
}

// page renders a Nakano style day grid for 2025-02-DD with Court A's two columns.
func page(day int, first, second string) string {
	return fmt.Sprintf(`<ul><li class="day" id="li">令和07年2月%d日</li></ul>
<table><thead><tr><th></th><th id="td10_1">09:00～11:00</th><th id="td10_2">19:00～21:00</th></tr></thead>
<tbody><tr><th><strong>Court A</strong></th>
<td id="td11_1"><img src="icon_timetable_%s.gif"></td>
<td id="td12_1"><img src="icon_timetable_%s.gif"></td></tr></tbody></table>`, day, first, second)
}

func portal(markup string) *fake.Driver {
	d := fake.New()
	d.Show(browser.ID("contents"), goButton)
	d.Then(goButton, func(d *fake.Driver) error {
		d.Markup = markup
		d.Show(grid)
		return nil
	})
	return d
}

func config(d browser.Driver, store *snapshot.Store, disp notify.Dispatcher) Config {
	return Config{
		Venue:      venue(),
		Driver:     d,
		Dispatcher: disp,
		Store:      store,
		Calendar:   holiday.New(),
		Recipients: []string{"a@example.com", "b@example.com"},
		Sleep:      func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		Now:        func() time.Time { return time.Date(2025, time.February, 1, 8, 0, 0, 0, time.UTC) },
	}
}

func memStore() *snapshot.Store {
	return &snapshot.Store{Fs: afero.NewMemMapFs(), Path: "/data/last_availability_riverside.txt"}
}

func TestChangeIsNotifiedAndPersisted(t *testing.T) {
	store := memStore()
	require.NoError(t, store.Write("2025-02-08 (土) | 09:00-11:00 | Court A"))
	disp := &recorder{}

	res, err := Run(context.Background(), config(portal(page(8, "O", "sankaku")), store, disp))
	require.NoError(t, err)
	require.Equal(t, Changed, res.Outcome)
	require.Equal(t, ExitOK, res.Outcome.ExitCode())
	require.True(t, res.Notified)

	want := "2025-02-08 (土) | 09:00-11:00 | Court A\n2025-02-08 (土) | 19:00-21:00 | Court A"
	require.Equal(t, want, res.Snapshot)
	require.Equal(t, []string{"2025-02-08 (土) | 19:00-21:00 | Court A"}, res.Added)
	require.Empty(t, res.Removed)

	require.Len(t, disp.sent, 1)
	require.Contains(t, disp.sent[0].body, want)
	require.Equal(t, "🎾 Riverside テニスコート空き状況更新", disp.sent[0].subject)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, disp.sent[0].to)

	stored, err := store.Read()
	require.NoError(t, err)
	require.Equal(t, want, stored)
}

func TestSecondRunOverSameDataIsSilent(t *testing.T) {
	store := memStore()
	disp := &recorder{}

	first, err := Run(context.Background(), config(portal(page(8, "O", "sankaku")), store, disp))
	require.NoError(t, err)
	require.Equal(t, Changed, first.Outcome)

	second, err := Run(context.Background(), config(portal(page(8, "O", "sankaku")), store, disp))
	require.NoError(t, err)
	require.Equal(t, Unchanged, second.Outcome)
	require.Equal(t, first.Snapshot, second.Snapshot)
	require.Len(t, disp.sent, 1)
}

func TestWeekdayOutsideWindowIsDropped(t *testing.T) {
	store := memStore()
	disp := &recorder{}
	// 2025-02-04 is a Tuesday: only the evening window survives.
	res, err := Run(context.Background(), config(portal(page(4, "O", "O")), store, disp))
	require.NoError(t, err)
	require.Equal(t, "2025-02-04 (火) | 19:00-21:00 | Court A", res.Snapshot)
}

func TestEverythingGoneSendsNoAvailability(t *testing.T) {
	store := memStore()
	require.NoError(t, store.Write("2025-02-08 (土) | 09:00-11:00 | Court A"))
	disp := &recorder{}

	res, err := Run(context.Background(), config(portal(page(8, "X", "X")), store, disp))
	require.NoError(t, err)
	require.Equal(t, Changed, res.Outcome)
	require.Empty(t, res.Snapshot)
	require.Equal(t, []string{"2025-02-08 (土) | 09:00-11:00 | Court A"}, res.Removed)
	require.Contains(t, disp.sent[0].body, NoAvailability)

	stored, _ := store.Read()
	require.Empty(t, stored)
}

func TestDispatchFailureKeepsOldSnapshot(t *testing.T) {
	store := memStore()
	old := "2025-02-08 (土) | 09:00-11:00 | Court A"
	require.NoError(t, store.Write(old))
	disp := &recorder{err: errors.New("535 auth failed")}

	res, err := Run(context.Background(), config(portal(page(8, "O", "sankaku")), store, disp))
	require.Error(t, err)
	require.Equal(t, NotifyFailed, res.Outcome)
	require.Equal(t, ExitNotify, res.Outcome.ExitCode())
	require.False(t, res.Notified)

	stored, _ := store.Read()
	require.Equal(t, old, stored)
}

func TestDispatchFailureCanStillPersist(t *testing.T) {
	store := memStore()
	disp := &recorder{err: errors.New("connection refused")}
	cfg := config(portal(page(8, "O", "sankaku")), store, disp)
	cfg.PersistOnFailure = true

	res, err := Run(context.Background(), cfg)
	require.Error(t, err)
	require.Equal(t, NotifyFailed, res.Outcome)
	stored, _ := store.Read()
	require.Equal(t, res.Snapshot, stored)
}

func TestCriticalStepFailure(t *testing.T) {
	d := fake.New()
	d.Show(browser.ID("contents"))
	store := memStore()
	disp := &recorder{}

	res, err := Run(context.Background(), config(d, store, disp))
	require.Error(t, err)
	require.Equal(t, StepFailed, res.Outcome)
	require.Equal(t, ExitStepFailed, res.Outcome.ExitCode())
	require.Equal(t, "search", res.FailedStep)
	require.Empty(t, disp.sent)
	// The venue's step budget is the default three attempts.
	require.Equal(t, 3, d.Waits[goButton.String()])
}

func TestSuspendedPortal(t *testing.T) {
	d := fake.New()
	d.Markup = `<div id="inner-contents">本日はサービス休止日となっております</div>`
	cfg := config(d, memStore(), &recorder{})
	cfg.Venue.Suspension = navigate.Suspension{Selector: "#inner-contents", Text: "サービス休止日"}

	res, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, navigate.ErrServiceSuspended)
	require.Equal(t, Suspended, res.Outcome)
	require.Equal(t, ExitSuspended, res.Outcome.ExitCode())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Outcome
	}{
		{nil, Unchanged},
		{navigate.ErrServiceSuspended, Suspended},
		{fmt.Errorf("%w after 3 attempt(s)", navigate.ErrLoadTimeout), LoadTimeout},
		{&navigate.StepFailedError{Step: "x", Critical: true, Err: browser.ErrTimeout}, StepFailed},
		{&navigate.StepFailedError{Step: "x", Err: browser.ErrTimeout}, Failed},
		{&notify.DispatchError{Err: notify.ErrNoRecipients}, NotifyFailed},
		{errors.New("disk full"), Failed},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Classify(c.err), "%v", c.err)
	}
}

func TestCanonicalIgnoresBookedAndOrder(t *testing.T) {
	v := venue()
	sat := slot.Date(2025, time.February, 8)
	recs := []slot.Record{
		{Date: sat, Facility: "Court A", Range: slot.MustTimeRange("19:00-21:00"), Status: slot.PartiallyOpen},
		{Date: sat, Facility: "Court A", Range: slot.MustTimeRange("11:00-13:00"), Status: slot.Booked},
		{Date: sat, Facility: "Court A", Range: slot.MustTimeRange("09:00-11:00"), Status: slot.FullyOpen},
	}
	got, err := Canonical(v, holiday.New(), recs)
	require.NoError(t, err)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "09:00-11:00")
	require.Contains(t, lines[1], "19:00-21:00")
}
