package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcus/agencysync/internal/api"
	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/output"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a markdown summary of an instance",
	Long: `Prints connectivity, record counts, counters and the pending queue as
markdown. On a terminal the markdown is rendered; --raw prints the source.`,
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.Status(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		entries, err := c.Queue(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}

		md := buildReport(st, entries, time.Now())
		if raw || !output.IsTerminal() {
			fmt.Print(md)
			return nil
		}
		rendered, err := output.RenderMarkdown(md)
		if err != nil {
			fmt.Print(md)
			return nil
		}
		fmt.Print(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().Bool("raw", false, "print markdown source")
}

func buildReport(st *orchestrator.Status, entries []api.QueueEntry, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", st.SourceID)
	fmt.Fprintf(&b, "_generated %s_\n\n", now.UTC().Format(time.RFC3339))

	mode := "automatic"
	if st.Forced {
		mode = "forced"
	}
	conn := "offline"
	if st.Online {
		conn = "online"
	}
	fmt.Fprintf(&b, "**Connectivity:** %s (%s)\n\n", conn, mode)
	if st.Replaying {
		b.WriteString("> A replay pass is running.\n\n")
	}

	b.WriteString("## Records\n\n| Collection | Count |\n|---|---:|\n")
	for _, coll := range models.Collections {
		fmt.Fprintf(&b, "| %s | %d |\n", coll, st.Counts[coll])
	}

	s := st.Stats
	b.WriteString("\n## Counters\n\n")
	fmt.Fprintf(&b, "- dispatched: %d (enqueued offline: %d)\n", s.Dispatched, s.Enqueued)
	fmt.Fprintf(&b, "- persisted: %d, failed: %d\n", s.Persisted, s.PersistFailed)
	fmt.Fprintf(&b, "- replayed: %d\n", s.ReplayedTotal)
	fmt.Fprintf(&b, "- from siblings: %d, echoes dropped: %d, from remote: %d\n", s.Relayed, s.EchoesDropped, s.Realtime)

	fmt.Fprintf(&b, "\n## Offline queue (%d)\n\n", st.QueueDepth)
	if len(entries) == 0 {
		b.WriteString("Nothing pending.\n")
	} else {
		b.WriteString("| Seq | Action | Queued |\n|---:|---|---|\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "| %d | `%s` | %s |\n", e.Seq, e.Type, e.EnqueuedAt.UTC().Format(time.RFC3339))
		}
	}
	if st.LastReplayAt != nil {
		fmt.Fprintf(&b, "\nLast replayed #%d at %s.\n", st.LastReplayed, st.LastReplayAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}
