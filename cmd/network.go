package cmd

import (
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/output"
	"github.com/spf13/cobra"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Override the instance's online/offline detection",
	Long: `Forces the instance online or offline regardless of what the probe sees,
or hands control back to the probe with "auto". Going online runs a replay.`,
	GroupID: "control",
}

func networkSubcommand(use, short string, set func(cmd *cobra.Command) (*orchestrator.Status, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := set(cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			output.Success("%s  %s", st.SourceID, output.OnlineBadge(st.Online, st.Forced))
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(networkCmd)
	networkCmd.AddCommand(
		networkSubcommand("online", "Force the instance online", func(cmd *cobra.Command) (*orchestrator.Status, error) {
			c, err := newClient()
			if err != nil {
				return nil, err
			}
			return c.SetNetwork(cmd.Context(), true)
		}),
		networkSubcommand("offline", "Force the instance offline", func(cmd *cobra.Command) (*orchestrator.Status, error) {
			c, err := newClient()
			if err != nil {
				return nil, err
			}
			return c.SetNetwork(cmd.Context(), false)
		}),
		networkSubcommand("auto", "Return to probe-driven detection", func(cmd *cobra.Command) (*orchestrator.Status, error) {
			c, err := newClient()
			if err != nil {
				return nil, err
			}
			return c.ReleaseNetwork(cmd.Context())
		}),
	)
}
