package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tenniscourt/slotwatch/internal/utils"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect or reset the stored availability of a venue",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <venue>",
	Short: "Print the last notified availability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := findVenue(args[0])
		if err != nil {
			return err
		}
		content, err := snapshotStore(venue).Read()
		if err != nil {
			return err
		}
		if content == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "No snapshot for %s yet (%s)\n", venue.Name, snapshotPath(venue))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), content)
		return nil
	},
}

// Clearing makes the next run report everything it finds.
var snapshotClearCmd = &cobra.Command{
	Use:   "clear <venue>",
	Short: "Forget the stored availability so the next run notifies again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		venue, err := findVenue(args[0])
		if err != nil {
			return err
		}
		if err := snapshotStore(venue).Clear(); err != nil {
			return err
		}
		utils.Log.Infof("Cleared snapshot for %s", venue.Name)
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotShowCmd, snapshotClearCmd)
	rootCmd.AddCommand(snapshotCmd)
}
