package venues

import (
	"fmt"
	"time"

	"github.com/tenniscourt/slotwatch/pkg/browser"
	"github.com/tenniscourt/slotwatch/pkg/collect"
	"github.com/tenniscourt/slotwatch/pkg/extract"
	"github.com/tenniscourt/slotwatch/pkg/navigate"
)

const (
	shinjukuURL = "https://user.shinjuku-shisetsu-yoyaku.jp/regasu/reserve/gin_menu"
	nakanoURL   = "https://yoyaku.nakano-tokyo.jp/stagia/reserve/grb_init"
	metroURL    = "https://kouen.sports.metro.tokyo.lg.jp/web/index.jsp"

	allDay = "00:00-24:00"

	weekdayTimeout = 2 * time.Second
)

var (
	id    = browser.ID
	css   = browser.CSS
	xpath = browser.XPath
)

func active(elementID string) browser.Locator {
	return xpath(fmt.Sprintf("//a[@id='%s' and contains(@class, 'active')]", elementID))
}

func okButton() browser.Locator {
	return xpath("//img[contains(@src, '/stagia/jsp/images_jp/common/btn-ok.gif')]")
}

// Builtin returns the venues shipped with the binary. Each call returns fresh values.
func Builtin() []Venue {
	return []Venue{okubo(), nakano("tetsugaku", "哲学堂公園", "id0", "19:00-21:00"), nakano("kamitakada", "上高田運動施設", "id1", "19:00-20:00", "20:00-21:00"), toneri(), ariake()}
}

func okubo() Venue {
	return Venue{
		Name:    "okubo",
		Title:   "大久保スポーツプラザ",
		BaseURL: shinjukuURL,
		Ready:   id("contents"),
		Suspension: navigate.Suspension{
			Selector: "#inner-contents",
			Text:     "本日はサービス休止日となっております",
		},
		Steps: []navigate.Step{
			{Name: "easy mode", Target: xpath("//input[@type='image' and @alt='かんたん操作']")},
			{Name: "availability", Target: xpath("//input[@type='image' and @alt='空き状況確認']")},
			{Name: "by purpose", Target: id("button3")},
			{Name: "sports", Target: id("id0")},
			{Name: "confirm purpose", Target: id("button0")},
			{Name: "tennis", Target: xpath("//a[@title='テニス']")},
			{Name: "every day", Action: navigate.ActionCheckAll, Target: xpath("//input[@type='checkbox' and @name='chkbox']")},
			{Name: "search", Target: id("btnOK")},
			{
				Name:           "by facility",
				Target:         xpath("//a[img[@alt='施設別に切替']]"),
				Await:          xpath("//*[@alt='日付別に切替']"),
				AwaitCondition: browser.ConditionPresent,
			},
		},
		Extractor: extract.Config{
			Strategy: "weekgrid",
			Icons:    extract.Icons{Alt: map[string]string{"O": "open", "△": "partial", "X": "booked", "×": "booked"}},
		},
		Facility:     "大久保",
		HideFacility: true,
		Windows:      []string{allDay},
	}
}

// nakano covers both Nakano city courts; they share the portal and differ in the
// facility picked and the weekday windows.
func nakano(name, title, facilityID string, windows ...string) Venue {
	status := xpath("//input[@type='image' and contains(@src, 'btn_check_status_01.gif')]")
	steps := []navigate.Step{
		{Name: "check status", Target: status, Await: id("allChecked"), AwaitCondition: browser.ConditionPresent},
		{Name: "all areas", Target: id("allChecked"), Await: active("allChecked"), AwaitCondition: browser.ConditionPresent},
		{Name: "confirm areas", Target: okButton(), Await: id("button2"), AwaitCondition: browser.ConditionPresent},
		{Name: "sports", Target: id("button2"), Await: active("button2"), AwaitCondition: browser.ConditionPresent},
		{Name: "confirm sports", Target: okButton(), Await: xpath("//img[contains(@src, '/stagia/jsp/images_jp/common/btn-page-next.gif')]"), AwaitCondition: browser.ConditionPresent},
		{Name: "next", Target: id("nextButton"), Await: xpath("//a[contains(text(), '硬式テニス')]"), AwaitCondition: browser.ConditionPresent},
		{Name: "tennis", Target: xpath("//a[contains(text(), '硬式テニス')]"), Await: id(facilityID), AwaitCondition: browser.ConditionPresent},
		{Name: "facility", Target: id(facilityID), Await: active(facilityID), AwaitCondition: browser.ConditionPresent},
		{Name: "confirm facility", Target: id("btnOk"), Await: id("button0"), AwaitCondition: browser.ConditionPresent},
		{Name: "all days", Target: id("allChecked"), Await: active("allChecked"), AwaitCondition: browser.ConditionPresent},
		{Name: "confirm days", Target: okButton(), Await: id("filter-by-day"), AwaitCondition: browser.ConditionPresent},
		{
			Name:           "today",
			Target:         xpath("//td[contains(@onclick, 'dateClick') and contains(@onclick, '{today}')]"),
			Await:          xpath("//td[contains(@onclick, 'dateClick') and contains(@onclick, '{today}')][contains(@class, 'active')]"),
			AwaitCondition: browser.ConditionPresent,
			Optional:       true,
		},
	}
	for i := 0; i < 8; i++ {
		steps = append(steps, navigate.Step{
			Name:     fmt.Sprintf("weekday %d", i),
			Target:   id(fmt.Sprintf("img%d", i)),
			Optional: true,
			// Toggles missing from the page should not hold navigation up.
			Timeout: weekdayTimeout,
			Retries: 1,
			Settle:  time.Second,
		})
	}
	steps = append(steps, navigate.Step{
		Name:           "show",
		Target:         okButton(),
		Await:          xpath("//img[contains(@src, '/stagia/jsp/images_jp/common/btn-nav-change.gif')]"),
		AwaitCondition: browser.ConditionPresent,
	})

	return Venue{
		Name:    name,
		Title:   title,
		BaseURL: nakanoURL,
		Ready:   id("contents"),
		Steps:   steps,
		Results: css("li.day#li"),
		Extractor: extract.Config{
			Strategy: "daygrid",
			Icons: extract.Icons{Src: map[string]string{
				"icon_timetable_O.gif":       "open",
				"icon_timetable_sankaku.gif": "partial",
				"icon_timetable_X.gif":       "booked",
			}},
		},
		Paging: collect.Pager{
			Next:     xpath("//img[@alt='次へ']"),
			Settle:   time.Second,
			MaxPages: 31,
		},
		Windows: windows,
	}
}

// metro builds a Tokyo metropolitan park venue: pick the sport and park, then walk the
// month calendar opening every day worth reporting.
func metro(name, title, purpose, park string, codes map[string]string, order []string, months int, settle time.Duration) Venue {
	return Venue{
		Name:        name,
		Title:       title,
		BaseURL:     metroURL,
		Ready:       id("btn-go"),
		LoadTimeout: 10 * time.Second,
		Steps: []navigate.Step{
			{
				Name:           "sport",
				Action:         navigate.ActionSelect,
				Target:         id("purpose-home"),
				Value:          purpose,
				Await:          xpath(fmt.Sprintf("//select[@id='bname-home']/option[@value='%s']", park)),
				AwaitCondition: browser.ConditionPresent,
			},
			{Name: "park", Action: navigate.ActionSelect, Target: id("bname-home"), Value: park},
			{Name: "search", Target: id("btn-go"), Await: browser.URLNot(metroURL), Timeout: 20 * time.Second},
			{Name: "month", Action: navigate.ActionWait, Await: id("loadedmonth"), AwaitCondition: browser.ConditionPresent, Timeout: 30 * time.Second},
			// The calendar may already be expanded.
			{Name: "expand", Target: css(".span-icon-down"), Await: id("month-info"), Timeout: 30 * time.Second, Optional: true},
		},
		Results: id("month-info"),
		Extractor: extract.Config{
			Strategy: "monthcal",
			Icons: extract.Icons{Alt: map[string]string{
				"全て空き": "open",
				"一部空き": "partial",
				"予約あり": "booked",
				"空き":   "open",
			}},
			TimeCodes: codes,
		},
		Paging: collect.Pager{
			Next:     id("next-month"),
			Await:    id("month-head"),
			Settle:   5 * time.Second,
			MaxPages: months,
		},
		// #week-info stays in the DOM between days; only the inputs name the day.
		DayDrill: &collect.Drill{Open: navigate.Step{
			Name:           "day {date}",
			Target:         id("{id}"),
			Await:          xpath("//input[starts-with(@id, 'A_{date}_')]"),
			AwaitCondition: browser.ConditionPresent,
			Timeout:        30 * time.Second,
			Settle:         settle,
		}},
		Facility:  title,
		TimeOrder: order,
	}
}

func toneri() Venue {
	codes := map[string]string{
		"10": "09:00-11:00", "20": "11:00-13:00", "30": "13:00-15:00",
		"40": "15:00-17:00", "50": "17:00-19:00", "60": "19:00-21:00",
	}
	order := []string{"09:00-11:00", "11:00-13:00", "13:00-15:00", "15:00-17:00", "17:00-19:00", "19:00-21:00"}
	// Only weekends and holidays: no weekday windows.
	return metro("toneri", "舎人公園", "1000_1030", "1140", codes, order, 2, 2*time.Second)
}

func ariake() Venue {
	codes := map[string]string{
		"10": "07:00-09:00", "20": "09:00-11:00", "30": "11:00-13:00", "40": "13:00-15:00",
		"50": "15:00-17:00", "60": "17:00-19:00", "70": "19:00-21:00",
	}
	order := []string{"07:00-09:00", "09:00-11:00", "11:00-13:00", "13:00-15:00", "15:00-17:00", "17:00-19:00", "19:00-21:00"}
	v := metro("ariake", "有明テニスの森公園", "1000_1020", "1350", codes, order, 1, 5*time.Second)
	v.Windows = []string{allDay}
	return v
}
