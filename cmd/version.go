package cmd

import (
	"fmt"

	"github.com/marcus/agencysync/internal/output"
	"github.com/marcus/agencysync/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version information",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("agencysync %s\n", versionStr)

		check, _ := cmd.Flags().GetBool("check")
		if !check {
			return nil
		}
		if version.IsDevelopmentVersion(versionStr) {
			output.Info("development build, skipping update check")
			return nil
		}
		res := version.Check(cmd.Context(), versionStr)
		switch {
		case res.Error != nil:
			output.Warning("update check failed: %v", res.Error)
		case res.HasUpdate:
			output.Info("%s is available: %s", res.LatestVersion, version.UpdateCommand(res.LatestVersion))
		default:
			output.Success("up to date")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("check", false, "check for a newer release")
}
