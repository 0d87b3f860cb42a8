package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/tenniscourt/slotwatch/internal/utils"
	"github.com/tenniscourt/slotwatch/pkg/venues"
	"github.com/tenniscourt/slotwatch/pkg/whttp"
)

var pingCmd = &cobra.Command{
	Use:   "ping [venue...]",
	Short: "Check that the venues' portals answer over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := loadVenues()
		if err != nil {
			return err
		}
		if len(args) > 0 {
			var picked []venues.Venue
			for _, name := range args {
				v, err := findVenue(name)
				if err != nil {
					return err
				}
				picked = append(picked, v)
			}
			list = picked
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		client := whttp.NewClient(whttp.Options{Timeout: timeout, Retries: 1})

		t := utils.NewTable(cmd.OutOrStdout(), "Venue", "Status", "Title", "Time")
		failed := 0
		for _, v := range list {
			res, err := whttp.Probe(cmd.Context(), client, v.BaseURL)
			if err != nil {
				failed++
				utils.Log.Debugf("%s: %v", v.Name, err)
				t.AppendRow([]interface{}{v.Name, "error", err.Error(), "-"})
				continue
			}
			if !res.OK() {
				failed++
			}
			t.AppendRow([]interface{}{v.Name, res.StatusCode, res.Title, res.Elapsed.Round(time.Millisecond)})
		}
		t.Render()
		if failed > 0 {
			exitCode = 1
		}
		return nil
	},
}

func init() {
	pingCmd.Flags().Duration("timeout", 15*time.Second, "Per request timeout")
	rootCmd.AddCommand(pingCmd)
}
