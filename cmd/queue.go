package cmd

import (
	"errors"
	"fmt"

	"github.com/marcus/agencysync/internal/api"
	"github.com/marcus/agencysync/internal/client"
	"github.com/marcus/agencysync/internal/output"
	"github.com/marcus/agencysync/internal/queue"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"q"},
	Short:   "Inspect and manage the offline queue",
	GroupID: "control",
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List actions waiting for replay",
	Long: `Lists pending actions in replay order. With --offline the queue file is
read directly, which works whether or not the instance is running.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		offline, _ := cmd.Flags().GetBool("offline")
		jsonOut, _ := cmd.Flags().GetBool("json")

		var (
			entries []api.QueueEntry
			err     error
		)
		if offline {
			entries, err = readQueueFile(cmd)
		} else {
			var c *client.Client
			if c, err = newClient(); err == nil {
				entries, err = c.Queue(cmd.Context())
			}
		}
		if err != nil {
			if offline && jsonOut {
				output.JSONError(output.ErrCodeQueueError, err.Error())
				return err
			}
			return fail(jsonOut, err)
		}

		if jsonOut {
			return output.JSON(entries)
		}
		if len(entries) == 0 {
			output.Info("queue is empty")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("#%-5d %-24s %s\n", e.Seq, e.Type, output.Subtle(output.FormatTimeAgo(e.EnqueuedAt)))
		}
		return nil
	},
}

func readQueueFile(cmd *cobra.Command) ([]api.QueueEntry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	q, err := queue.OpenReadOnly(cfg.QueuePath())
	if err != nil {
		return nil, err
	}
	defer q.Close()

	entries, err := q.All(cmd.Context())
	if err != nil {
		return nil, err
	}
	return api.QueueEntries(entries)
}

var queueReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay queued actions against the remote store now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")

		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Replay(cmd.Context())
		if err != nil {
			if jsonOut {
				output.JSONError(output.ErrCodeReplayFailed, err.Error())
				return err
			}
			if res != nil {
				output.Warning("replayed %d, %d still queued", res.Replayed, res.Remaining)
			}
			output.Error("replay: %v", err)
			return err
		}
		if jsonOut {
			return output.JSON(res)
		}
		output.Success("replayed %d action(s)", res.Replayed)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard every queued action without replaying it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			err := errors.New("clear discards unsynced changes; pass --force to confirm")
			output.Error("%v", err)
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		n, err := c.ClearQueue(cmd.Context())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("discarded %d queued action(s)", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueReplayCmd, queueClearCmd)

	queueListCmd.Flags().Bool("offline", false, "read the queue file instead of asking the instance")
	queueListCmd.Flags().Bool("json", false, "JSON output")
	queueReplayCmd.Flags().Bool("json", false, "JSON output")
	queueClearCmd.Flags().BoolP("force", "f", false, "confirm discarding queued actions")
}
