package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tenniscourt/slotwatch/internal/utils"
	"github.com/tenniscourt/slotwatch/pkg/holiday"
	"github.com/tenniscourt/slotwatch/pkg/notify"
	"github.com/tenniscourt/slotwatch/pkg/snapshot"
	"github.com/tenniscourt/slotwatch/pkg/venues"
)

func loadVenues() ([]venues.Venue, error) {
	return venues.Load(viper.GetViper())
}

func findVenue(name string) (venues.Venue, error) {
	list, err := loadVenues()
	if err != nil {
		return venues.Venue{}, err
	}
	v, ok := venues.Find(list, name)
	if !ok {
		return venues.Venue{}, fmt.Errorf("unknown venue %q (available: %s)", name, strings.Join(venues.Names(list), ", "))
	}
	return v, nil
}

func snapshotPath(v venues.Venue) string {
	return v.SnapshotFile(viper.GetString("snapshot.dir"))
}

func snapshotStore(v venues.Venue) *snapshot.Store {
	return snapshot.NewStore(snapshotPath(v))
}

// loadCalendar returns the embedded holidays plus the configured extra file.
func loadCalendar(now time.Time) (*holiday.Table, error) {
	cal := holiday.New()
	if path := viper.GetString("holidays.file"); path != "" {
		if err := cal.LoadFile(path); err != nil {
			return nil, err
		}
	}
	for _, year := range []int{now.Year(), now.Year() + 1} {
		if !cal.Covers(year) {
			utils.Log.Warnf("Holiday calendar has no entries for %d, only weekends will be treated as days off", year)
		}
	}
	return cal, nil
}

func smtpDispatcher() *notify.SMTP {
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     viper.GetString("smtp.host"),
		Port:     viper.GetInt("smtp.port"),
		Sender:   viper.GetString("notify.sender"),
		Password: viper.GetString("notify.password"),
		ToHeader: viper.GetString("notify.to_header"),
	})
}

func recipients() []string {
	return utils.SplitList(viper.GetString("notify.recipients"))
}
