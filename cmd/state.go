package cmd

import (
	"fmt"

	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/output"
	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state [COLLECTION]",
	Short: "Print the instance's state, or one collection",
	Long: `Prints the state as JSON. --debug dumps the decoded Go values instead,
which shows zero values and nil pointers that JSON omits.

Collections: customers, requests, messages, payments, claims, agents, admins.`,
	GroupID: "inspect",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")

		var coll models.Collection
		if len(args) == 1 {
			coll = models.Collection(args[0])
			if !coll.Valid() {
				return fail(false, fmt.Errorf("unknown collection %q", coll))
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		if !debug {
			if coll != "" {
				raw, err := c.Collection(cmd.Context(), string(coll))
				if err != nil {
					return fail(false, err)
				}
				return output.JSON(raw)
			}
			s, err := c.State(cmd.Context())
			if err != nil {
				return fail(false, err)
			}
			return output.JSON(s)
		}

		s, err := c.State(cmd.Context())
		if err != nil {
			return fail(false, err)
		}
		var v any = s
		if coll != "" {
			v, _ = s.Collection(coll)
		}
		litter.Config.HidePrivateFields = false
		litter.Dump(v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().Bool("debug", false, "dump decoded Go values")
}
