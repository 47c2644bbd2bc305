package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marcus/agencysync/internal/client"
	"github.com/marcus/agencysync/internal/output"
	"github.com/marcus/agencysync/internal/state"
	"github.com/spf13/cobra"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch TYPE [PAYLOAD]",
	Short: "Dispatch an action to a running instance",
	Long: `Dispatches one action. PAYLOAD is the action's JSON payload; pass "-" to
read it from stdin. With --raw, the single argument is the whole encoded
action ({"type": ..., "payload": ...}).`,
	Example: `  agencysync dispatch ADD_CUSTOMER '{"id":7,"name":"Ada","status":"Pending","created_at":"2026-03-14T09:30:00Z"}'
  agencysync dispatch APPROVE_REQUEST '{"request_id":3,"approved_at":"2026-03-14T10:00:00Z","approved_by":2}'
  agencysync dispatch DELETE_CLAIM '{"id":9}'
  echo '{"type":"DELETE_CLAIM","payload":{"id":9}}' | agencysync dispatch --raw -`,
	GroupID: "core",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		jsonOut, _ := cmd.Flags().GetBool("json")

		action, err := buildAction(args, raw, cmd.InOrStdin())
		if err != nil {
			return fail(jsonOut, fmt.Errorf("%w: %w", client.ErrBadRequest, err))
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		resp, err := c.Dispatch(cmd.Context(), action)
		if err != nil {
			return fail(jsonOut, fmt.Errorf("dispatch: %w", err))
		}

		if jsonOut {
			return output.JSON(resp)
		}
		if resp.Online {
			output.Success("%s applied", resp.Type)
		} else {
			output.Warning("%s applied locally and queued for replay (offline)", resp.Type)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.Flags().Bool("raw", false, "argument is the full encoded action")
	dispatchCmd.Flags().Bool("json", false, "JSON output")
}

// buildAction assembles the encoded action from the arguments and checks
// it decodes to a known action before anything is sent.
func buildAction(args []string, raw bool, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	switch {
	case raw:
		if len(args) != 1 {
			return nil, fmt.Errorf("--raw takes exactly one argument")
		}
		b, err := readArg(args[0], stdin)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		payload := []byte("{}")
		if len(args) == 2 {
			b, err := readArg(args[1], stdin)
			if err != nil {
				return nil, err
			}
			payload = b
		}
		if !json.Valid(payload) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		b, err := json.Marshal(struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}{strings.ToUpper(args[0]), payload})
		if err != nil {
			return nil, err
		}
		data = b
	}

	a, err := state.UnmarshalAction(data)
	if err != nil {
		return nil, err
	}
	if !state.Known(a.Type()) {
		return nil, fmt.Errorf("unknown action type %q", a.Type())
	}
	return data, nil
}

func readArg(arg string, stdin io.Reader) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return b, nil
}
