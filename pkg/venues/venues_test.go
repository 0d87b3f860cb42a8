package venues

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/tenniscourt/slotwatch/pkg/browser"
	"github.com/tenniscourt/slotwatch/pkg/holiday"
	"github.com/tenniscourt/slotwatch/pkg/navigate"
	"github.com/tenniscourt/slotwatch/pkg/slot"
)

func loadYAML(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return v
}

func TestBuiltinVenuesValidate(t *testing.T) {
	list := Builtin()
	require.Equal(t, []string{"okubo", "tetsugaku", "kamitakada", "toneri", "ariake"}, Names(list))
	for _, v := range list {
		require.NoError(t, v.Validate(), v.Name)
	}
}

func TestBuiltinReturnsFreshValues(t *testing.T) {
	a := Builtin()
	a[0].Steps[0].Name = "changed"
	a[3].DayDrill.Open.Settle = time.Hour
	b := Builtin()
	require.NotEqual(t, "changed", b[0].Steps[0].Name)
	require.NotEqual(t, time.Hour, b[3].DayDrill.Open.Settle)
}

func TestNakanoVenuesDifferInFacilityAndWindows(t *testing.T) {
	tetsu, ok := Find(Builtin(), "tetsugaku")
	require.True(t, ok)
	kami, ok := Find(Builtin(), "KamiTakada")
	require.True(t, ok)

	require.Equal(t, browser.ID("id0"), tetsu.Steps[7].Target)
	require.Equal(t, browser.ID("id1"), kami.Steps[7].Target)
	require.Equal(t, []string{"19:00-21:00"}, tetsu.Windows)
	require.Equal(t, []string{"19:00-20:00", "20:00-21:00"}, kami.Windows)

	_, ok = Find(Builtin(), "nowhere")
	require.False(t, ok)
}

func TestResolveFillsToday(t *testing.T) {
	v, _ := Find(Builtin(), "tetsugaku")
	now := time.Date(2025, time.February, 8, 9, 0, 0, 0, time.UTC)
	r := v.Resolve(now)

	var today navigate.Step
	for _, s := range r.Steps {
		if s.Name == "today" {
			today = s
		}
	}
	require.True(t, today.Optional)
	require.Contains(t, today.Target.Value, "20250208")
	require.NotContains(t, today.Await.Value, "{today}")
	// Resolve works on a copy.
	require.Contains(t, v.Steps[11].Target.Value, "{today}")
}

func TestResolveUsesTokyoDate(t *testing.T) {
	// 05:00 in Tokyo on the 8th, still the 7th on a UTC host.
	now := time.Date(2025, time.February, 7, 20, 0, 0, 0, time.UTC)
	r := Venue{Steps: []navigate.Step{{Name: "day {today}", Target: browser.ID("d{today}")}}}.Resolve(now)
	require.Equal(t, "day 20250208", r.Steps[0].Name)
	require.Equal(t, "d20250208", r.Steps[0].Target.Value)

	tetsu, _ := Find(Builtin(), "tetsugaku")
	for _, s := range tetsu.Resolve(now).Steps {
		if s.Name == "today" {
			require.Contains(t, s.Target.Value, "20250208")
		}
	}
}

func TestWeekdayTogglesFailFast(t *testing.T) {
	v, _ := Find(Builtin(), "tetsugaku")
	n := 0
	for _, s := range v.Steps {
		if !strings.HasPrefix(s.Name, "weekday ") {
			continue
		}
		n++
		require.True(t, s.Optional, s.Name)
		require.Equal(t, 1, s.Retries, s.Name)
		require.Equal(t, 2*time.Second, s.Timeout, s.Name)
	}
	require.Equal(t, 8, n)
}

func TestMetroDrillAwaitsTheOpenedDay(t *testing.T) {
	for _, name := range []string{"toneri", "ariake"} {
		v, _ := Find(Builtin(), name)
		require.NotNil(t, v.DayDrill, name)
		await := v.DayDrill.Open.Await
		require.Equal(t, browser.ByXPath, await.By, name)
		require.Contains(t, await.Value, "A_{date}_", name)
		require.Equal(t, browser.ConditionPresent, v.DayDrill.Open.AwaitCondition, name)
	}
}

func TestPlanCarriesVenueNavigation(t *testing.T) {
	v, _ := Find(Builtin(), "toneri")
	p := v.Plan(time.Minute)
	require.Equal(t, metroURL, p.URL)
	require.Equal(t, browser.ID("btn-go"), p.Ready)
	require.Equal(t, 10*time.Second, p.LoadTimeout)
	require.Equal(t, time.Minute, p.Watchdog)
	require.Len(t, p.Steps, 5)
	require.Equal(t, browser.ID("month-info"), p.Results)
}

func TestPolicyUsesWindows(t *testing.T) {
	v, _ := Find(Builtin(), "kamitakada")
	p, err := v.Policy(holiday.New())
	require.NoError(t, err)
	tuesday := slot.Date(2025, time.February, 4)
	require.True(t, p.Keep(slot.Record{Date: tuesday, Range: slot.MustTimeRange("19:00-20:00"), Status: slot.FullyOpen}))
	require.False(t, p.Keep(slot.Record{Date: tuesday, Range: slot.MustTimeRange("09:00-11:00"), Status: slot.FullyOpen}))

	toneri, _ := Find(Builtin(), "toneri")
	p, err = toneri.Policy(holiday.New())
	require.NoError(t, err)
	require.False(t, p.MayKeep(tuesday))
	require.True(t, p.MayKeep(slot.Date(2025, time.February, 11)))
}

func TestSnapshotFile(t *testing.T) {
	v := Venue{Name: "okubo"}
	require.Equal(t, "last_availability_okubo.txt", v.SnapshotFile(""))
	require.Equal(t, "/var/lib/slotwatch/last_availability_okubo.txt", v.SnapshotFile("/var/lib/slotwatch"))
	v.SnapshotPath = "/tmp/okubo.txt"
	require.Equal(t, "/tmp/okubo.txt", v.SnapshotFile("/var/lib/slotwatch"))
}

func TestMailSubject(t *testing.T) {
	require.Equal(t, "🎾 舎人公園 テニスコート空き状況更新", Venue{Name: "toneri", Title: "舎人公園"}.MailSubject())
	require.Equal(t, "custom", Venue{Name: "x", Subject: "custom"}.MailSubject())
}

func TestLoadWithoutConfigReturnsBuiltins(t *testing.T) {
	list, err := Load(nil)
	require.NoError(t, err)
	require.Len(t, list, 5)

	list, err = Load(viper.New())
	require.NoError(t, err)
	require.Len(t, list, 5)
}

func TestLoadOverridesBuiltin(t *testing.T) {
	v := loadYAML(t, `
venues:
  tetsugaku:
    windows: "18:00-19:00,19:00-21:00"
    subject: 哲学堂
  toneri:
    paging:
      max_pages: 3
    steps:
      - name: search
        target: id=btn-go
        await: url=https://kouen.sports.metro.tokyo.lg.jp/web/index.jsp
        timeout: 45s
`)
	list, err := Load(v)
	require.NoError(t, err)
	require.Len(t, list, 5)

	tetsu, _ := Find(list, "tetsugaku")
	require.Equal(t, []string{"18:00-19:00", "19:00-21:00"}, tetsu.Windows)
	require.Equal(t, "哲学堂", tetsu.Subject)
	require.Equal(t, nakanoURL, tetsu.BaseURL)
	require.Len(t, tetsu.Steps, 21)

	toneri, _ := Find(list, "toneri")
	require.Equal(t, 3, toneri.Paging.MaxPages)
	require.Equal(t, browser.ID("next-month"), toneri.Paging.Next)
	// A steps list replaces the built-in one.
	require.Len(t, toneri.Steps, 1)
	require.Equal(t, browser.ID("btn-go"), toneri.Steps[0].Target)
	require.Equal(t, browser.URLNot(metroURL), toneri.Steps[0].Await)
	require.Equal(t, 45*time.Second, toneri.Steps[0].Timeout)
}

func TestLoadAddsVenue(t *testing.T) {
	v := loadYAML(t, `
venues:
  riverside:
    title: Riverside
    base_url: https://courts.example.com
    ready_marker: css=#app
    steps:
      - target: xpath=//a[text()='Tennis']
        await: id=grid
    extractor:
      strategy: daygrid
    windows: ["19:00-21:00"]
`)
	list, err := Load(v)
	require.NoError(t, err)
	require.Len(t, list, 6)
	r, ok := Find(list, "riverside")
	require.True(t, ok)
	require.Equal(t, browser.CSS("#app"), r.Ready)
	require.Equal(t, browser.XPath("//a[text()='Tennis']"), r.Steps[0].Target)
	require.Equal(t, "daygrid", r.Extractor.Strategy)
}

func TestLoadRejectsBadVenue(t *testing.T) {
	_, err := Load(loadYAML(t, `
venues:
  broken:
    base_url: https://courts.example.com
    extractor:
      strategy: nosuch
`))
	require.Error(t, err)

	_, err = Load(loadYAML(t, `
venues:
  okubo:
    ready_marker: contents
`))
	require.Error(t, err)

	_, err = Load(loadYAML(t, `
venues:
  okubo:
    windows: ["late"]
`))
	require.Error(t, err)
}
