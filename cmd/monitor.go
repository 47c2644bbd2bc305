package cmd

import (
	"time"

	"github.com/marcus/agencysync/pkg/monitor"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	Aliases: []string{"top"},
	Short:   "Live view of an instance's connectivity and queue",
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = 2 * time.Second
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		return monitor.Run(c, interval, versionStr)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "poll interval")
}
