package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/tenniscourt/slotwatch/internal/utils"
)

var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "List the configured venues",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := loadVenues()
		if err != nil {
			return err
		}
		t := utils.NewTable(cmd.OutOrStdout(), "Name", "Title", "Strategy", "Steps", "Weekday windows", "Snapshot")
		for _, v := range list {
			windows := strings.Join(v.Windows, ", ")
			if windows == "" {
				windows = "-"
			}
			t.AppendRow([]interface{}{v.Name, v.Title, v.Extractor.Strategy, len(v.Steps), windows, snapshotPath(v)})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(venuesCmd)
}
