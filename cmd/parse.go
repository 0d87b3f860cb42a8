package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tenniscourt/slotwatch/internal/utils"
	"github.com/tenniscourt/slotwatch/pkg/extract"
	"github.com/tenniscourt/slotwatch/pkg/watch"
)

// parseCmd runs a venue's extraction on a page saved from the browser, without
// navigating. Useful when a portal changes its markup.
var parseCmd = &cobra.Command{
	Use:   "parse <venue> <page.html>",
	Short: "Extract and format slots from a saved results page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := findVenue(args[0])
		if err != nil {
			return err
		}
		markup, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		view := extract.View{Reference: time.Now(), Facility: venue.Facility}
		if ref, _ := cmd.Flags().GetString("reference"); ref != "" {
			if view.Reference, err = time.Parse("2006-01-02", ref); err != nil {
				return fmt.Errorf("--reference: %w", err)
			}
		}
		if date, _ := cmd.Flags().GetString("date"); date != "" {
			if view.Date, err = time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
		}

		extractor, err := extract.New(venue.Extractor)
		if err != nil {
			return err
		}
		recs, stats, err := extractor.Extract(string(markup), view)
		if err != nil {
			return err
		}

		t := utils.NewTable(cmd.OutOrStdout(), "Date", "Time", "Facility", "Status", "Vacancies")
		for _, r := range recs {
			t.AppendRow([]interface{}{r.Date.Format("2006-01-02"), r.Range, r.Facility, r.Status, r.Vacancies})
		}
		t.AppendFooter([]interface{}{"", "", "", "dropped", stats.Dropped})
		t.Render()

		cal, err := loadCalendar(view.Reference)
		if err != nil {
			return err
		}
		canonical, err := watch.Canonical(venue, cal, recs)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		if canonical == "" {
			canonical = watch.NoAvailability
		}
		fmt.Fprintln(cmd.OutOrStdout(), canonical)
		return nil
	},
}

func init() {
	parseCmd.Flags().String("reference", "", "Date the page was captured (YYYY-MM-DD), for pages without years")
	parseCmd.Flags().String("date", "", "Day shown by a day-detail page (YYYY-MM-DD)")
	rootCmd.AddCommand(parseCmd)
}
