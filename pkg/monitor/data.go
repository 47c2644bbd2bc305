package monitor

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/agencysync/internal/api"
	"github.com/marcus/agencysync/internal/orchestrator"
)

const requestTimeout = 10 * time.Second

// Source is the instance the monitor watches. *client.Client satisfies it.
type Source interface {
	Status(ctx context.Context) (*orchestrator.Status, error)
	Queue(ctx context.Context) ([]api.QueueEntry, error)
	SetNetwork(ctx context.Context, online bool) (*orchestrator.Status, error)
	ReleaseNetwork(ctx context.Context) (*orchestrator.Status, error)
	Replay(ctx context.Context) (*api.ReplayResponse, error)
	Refresh(ctx context.Context) (map[string]int, error)
	ClearQueue(ctx context.Context) (int64, error)
}

// TickMsg schedules the next poll.
type TickMsg time.Time

// DataMsg carries one poll result.
type DataMsg struct {
	Status *orchestrator.Status
	Queue  []api.QueueEntry
	Err    error
	At     time.Time
	// Chained is set on polls driven by the tick loop; only those schedule
	// the next tick.
	Chained bool
}

// ActionDoneMsg reports a finished user action.
type ActionDoneMsg struct {
	Label  string
	Detail string
	Err    error
}

func fetch(src Source, chained bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		msg := DataMsg{At: time.Now(), Chained: chained}
		msg.Status, msg.Err = src.Status(ctx)
		if msg.Err != nil {
			return msg
		}
		msg.Queue, msg.Err = src.Queue(ctx)
		return msg
	}
}

// runAction wraps a Source call as a command reporting ActionDoneMsg.
func runAction(label string, do func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		detail, err := do(ctx)
		return ActionDoneMsg{Label: label, Detail: detail, Err: err}
	}
}

func forceNetwork(src Source, online bool) tea.Cmd {
	label := "force offline"
	if online {
		label = "force online"
	}
	return runAction(label, func(ctx context.Context) (string, error) {
		_, err := src.SetNetwork(ctx, online)
		return "", err
	})
}

func releaseNetwork(src Source) tea.Cmd {
	return runAction("automatic connectivity", func(ctx context.Context) (string, error) {
		_, err := src.ReleaseNetwork(ctx)
		return "", err
	})
}

func replay(src Source) tea.Cmd {
	return runAction("replay", func(ctx context.Context) (string, error) {
		res, err := src.Replay(ctx)
		if res == nil {
			return "", err
		}
		return fmt.Sprintf("%d replayed, %d remaining", res.Replayed, res.Remaining), err
	})
}

func refresh(src Source) tea.Cmd {
	return runAction("reload", func(ctx context.Context) (string, error) {
		counts, err := src.Refresh(ctx)
		if err != nil {
			return "", err
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		return fmt.Sprintf("%d records", total), nil
	})
}

func clearQueue(src Source) tea.Cmd {
	return runAction("clear queue", func(ctx context.Context) (string, error) {
		n, err := src.ClearQueue(ctx)
		return fmt.Sprintf("%d dropped", n), err
	})
}
