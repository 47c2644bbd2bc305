package cmd

import (
	"fmt"
	"time"

	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/output"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show connectivity, queue depth and counters",
	GroupID: "inspect",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			return fail(jsonOut, err)
		}
		if jsonOut {
			return output.JSON(st)
		}
		printStatus(st)

		// API counters are informational; an older instance may not serve them.
		if m, err := c.Metrics(cmd.Context()); err == nil {
			fmt.Print(output.SectionHeader("api"))
			fmt.Printf("  up %s, %d requests (%d client errors, %d server errors), %d watchers\n",
				time.Duration(m.UptimeSeconds*float64(time.Second)).Round(time.Second), m.Requests, m.ClientErrors, m.ServerErrors, m.Watchers)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "JSON output")
}

func printStatus(st *orchestrator.Status) {
	fmt.Printf("%s  %s\n", output.Title(st.SourceID), output.OnlineBadge(st.Online, st.Forced))
	if st.Replaying {
		output.Warning("replay in progress")
	}

	lastReplay := "never"
	if st.LastReplayAt != nil {
		lastReplay = output.FormatTimeAgo(*st.LastReplayAt)
	}
	fmt.Printf("queue:      %d pending, last replayed #%d (%s)\n", st.QueueDepth, st.LastReplayed, lastReplay)
	fmt.Printf("records:    %s\n", output.FormatCounts(st.Counts))
	fmt.Print(output.SectionHeader("counters"))
	s := st.Stats
	for _, line := range output.IndentLines([]string{
		fmt.Sprintf("dispatched %d, enqueued %d, reductions %d", s.Dispatched, s.Enqueued, s.Reductions),
		fmt.Sprintf("persisted %d, failed %d, replayed %d", s.Persisted, s.PersistFailed, s.ReplayedTotal),
		fmt.Sprintf("from siblings %d, echoes dropped %d, from remote %d", s.Relayed, s.EchoesDropped, s.Realtime),
	}, 2) {
		fmt.Println(line)
	}
}
