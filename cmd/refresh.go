package cmd

import (
	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/output"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload every collection from the remote store",
	Long: `Replaces the instance's state with a fresh read of the remote store.
Remote data wins; local changes not yet persisted are lost.`,
	GroupID: "control",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		counts, err := c.Refresh(cmd.Context())
		if err != nil {
			output.Error("refresh: %v", err)
			return err
		}
		typed := make(map[models.Collection]int, len(counts))
		for k, v := range counts {
			typed[models.Collection(k)] = v
		}
		output.Success("refreshed: %s", output.FormatCounts(typed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
