package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/marcus/agencysync/internal/api"
	"github.com/marcus/agencysync/internal/broadcast"
	"github.com/marcus/agencysync/internal/config"
	"github.com/marcus/agencysync/internal/gateway"
	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/netstatus"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/queue"
	"github.com/marcus/agencysync/internal/state"
	"github.com/marcus/agencysync/internal/telemetry"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an instance and serve its local API",
	Long: `Opens the instance's offline queue, connects to the remote store and the
broadcast channel, loads every collection and serves the local API until
interrupted.

With the memory gateway the remote store lives inside this process; --seed
fills it from a JSON state file first.`,
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("instance"); v != "" {
			cfg.Instance = v
		}
		if v, _ := cmd.Flags().GetString("listen"); v != "" {
			cfg.ListenAddr = v
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		setupLogging(os.Stderr, cfg.LogLevel, cfg.LogFormat)

		offline, _ := cmd.Flags().GetBool("offline")
		seed, _ := cmd.Flags().GetString("seed")
		return runInstance(cmd.Context(), cfg, offline, seed)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("instance", "", "instance name (overrides config)")
	runCmd.Flags().String("listen", "", "API listen address (overrides config)")
	runCmd.Flags().Bool("offline", false, "start forced offline")
	runCmd.Flags().String("seed", "", "JSON state file to load into the memory gateway")
}

func runInstance(parent context.Context, cfg config.Config, offline bool, seed string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEndpoint != "" {
		shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, "agencysync", versionStr)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				slog.Warn("telemetry shutdown", "err", err)
			}
		}()
	}

	q, err := queue.Open(cfg.QueuePath(), queue.Options{})
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	gw, closeGateway, err := openGateway(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer closeGateway()

	ch := broadcast.Open(ctx, broadcast.Options{
		Kind:     cfg.Broadcast,
		Name:     cfg.ChannelName,
		RedisURL: cfg.RedisURL,
	})
	defer ch.Close()

	mon := netstatus.New(gw, cfg.ProbeInterval.Std())
	if offline {
		mon.Force(false)
	}
	go mon.Run(ctx)

	orch := orchestrator.New(
		orchestrator.Deps{Gateway: gw, Queue: q, Channel: ch, Monitor: mon},
		orchestrator.Options{
			ReplayDelay:    cfg.ReplayDelay.Std(),
			PersistTimeout: cfg.PersistTimeout.Std(),
		},
	)
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer orch.Close()

	srv := api.NewServer(api.Config{
		ListenAddr:         cfg.ListenAddr,
		CORSAllowedOrigins: cfg.CORSOrigins,
	}, orch)
	if err := srv.Start(); err != nil {
		return err
	}
	slog.Info("instance started",
		"instance", cfg.Instance,
		"src", orch.SourceID(),
		"gateway", cfg.Gateway,
		"broadcast", cfg.Broadcast,
		"queue", q.Path(),
	)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	return nil
}

// openGateway connects the configured remote store and returns its closer.
func openGateway(ctx context.Context, cfg config.Config, seed string) (gateway.Gateway, func(), error) {
	switch cfg.Gateway {
	case config.GatewayPostgres:
		if seed != "" {
			return nil, nil, fmt.Errorf("--seed only applies to the memory gateway")
		}
		pg, err := gateway.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		return pg, pg.Close, nil
	default:
		mem := gateway.NewMemory()
		if seed != "" {
			if err := seedMemory(mem, seed); err != nil {
				return nil, nil, err
			}
		}
		return mem, func() {}, nil
	}
}

// seedMemory loads a state file into mem without notifying anyone.
func seedMemory(mem *gateway.Memory, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var s state.AppState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse seed %s: %w", path, err)
	}

	for _, err := range []error{
		putAll(mem, models.CollectionCustomers, s.Customers),
		putAll(mem, models.CollectionRequests, s.Requests),
		putAll(mem, models.CollectionMessages, s.Messages),
		putAll(mem, models.CollectionPayments, s.Payments),
		putAll(mem, models.CollectionClaims, s.Claims),
		putAll(mem, models.CollectionAgents, s.Agents),
		putAll(mem, models.CollectionAdmins, s.Admins),
	} {
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	slog.Info("memory gateway seeded", "path", path, "records", s.Counts())
	return nil
}

func putAll[T interface{ Key() int64 }](mem *gateway.Memory, c models.Collection, list []T) error {
	records := make([]gateway.Record, 0, len(list))
	for _, v := range list {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s %d: %w", c, v.Key(), err)
		}
		records = append(records, gateway.Record{ID: v.Key(), Data: data})
	}
	mem.Put(c, records...)
	return nil
}
