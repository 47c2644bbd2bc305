package cmd

import (
	"github.com/marcus/agencysync/internal/output"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:     "ping",
	Short:   "Check that an instance is serving its API",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		h, err := c.Health(cmd.Context())
		if err != nil {
			return fail(false, err)
		}
		output.Success("%s %s  %s", c.BaseURL, h.Status, output.OnlineBadge(h.Online, false))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
