package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyluth/hark/internal/admin"
	"github.com/dyluth/hark/internal/advisor"
	"github.com/dyluth/hark/internal/config"
	"github.com/dyluth/hark/internal/core"
	"github.com/dyluth/hark/internal/logging"
	"github.com/dyluth/hark/internal/persistence"
	"github.com/dyluth/hark/internal/printer"
	"github.com/dyluth/hark/pkg/blackboard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decision pipeline",
	Long: `Run the decision pipeline until interrupted.

When redis.url is set, events are read from the instance's ingress channel,
emitted messages are published on its messages channel, and preferences,
history, feedback and daily metrics are persisted. Without Redis the pipeline
runs in memory and events arrive only through the admin API.

Optional collaborators that fail to start are reported and the pipeline
continues without them.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return printer.Error("failed to create logger", err.Error(), nil)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []core.Option{core.WithLogger(logger)}

	var store *persistence.Client
	var storeErr error
	if cfg.Redis.URL != "" {
		store, storeErr = persistence.Connect(ctx, cfg.Redis.URL, cfg.Redis.Instance)
		if storeErr == nil {
			defer store.Close()
			opts = append(opts, core.WithPersistence(store, persistence.WriterConfig{}))
		}
	}

	adv, advErr := buildAdvisor(ctx, cfg)
	if adv != nil {
		opts = append(opts, core.WithAdvisor(adv))
	}

	c, err := core.New(cfg, opts...)
	if err != nil {
		return printer.Error("failed to start pipeline", err.Error(), nil)
	}
	if storeErr != nil {
		c.MarkUnavailable(core.ComponentPersistence, storeErr)
		printer.Warning("persistence unavailable, running in memory: %v\n", storeErr)
	}
	if advErr != nil {
		c.MarkUnavailable(core.ComponentAdvisor, advErr)
		printer.Warning("advisor unavailable, delegate rules disabled: %v\n", advErr)
	}

	if store != nil {
		if err := c.Restore(ctx); err != nil {
			printer.Warning("could not restore learned state: %v\n", err)
		}
		unsubscribe := c.Subscribe(func(msg blackboard.OutputMessage) error {
			return store.PublishMessage(ctx, msg)
		})
		defer unsubscribe()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(gctx) })

	if store != nil {
		sub, err := store.SubscribeEvents(gctx)
		if err != nil {
			c.MarkUnavailable(core.ComponentPersistence, err)
		} else {
			defer sub.Close()
			g.Go(func() error { return c.Consume(gctx, sub) })
		}
	}

	if cfg.Admin.Addr != "" {
		var pinger admin.Pinger
		if store != nil {
			pinger = store
		}
		srv := admin.NewServer(admin.Config{
			Addr:            cfg.Admin.Addr,
			EventsPerSecond: cfg.Admin.EventsPerSecond,
			EventsBurst:     cfg.Admin.EventsBurst,
		}, c, pinger, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	printer.Success("hark serving user '%s' (instance '%s')\n", cfg.Identity.UserID, cfg.Redis.Instance)
	logging.Event(logger, "pipeline_started",
		zap.String("user_id", cfg.Identity.UserID),
		zap.Bool("persistence", store != nil),
		zap.Bool("advisor", adv != nil),
		zap.String("admin_addr", cfg.Admin.Addr),
	)

	if err := g.Wait(); err != nil {
		return printer.Error("pipeline stopped with an error", err.Error(), nil)
	}
	printer.Info("hark stopped\n")
	return nil
}

// buildAdvisor returns nil without error when the advisor is disabled.
func buildAdvisor(ctx context.Context, cfg *config.HarkConfig) (advisor.Advisor, error) {
	if !cfg.Advisor.Enabled {
		return nil, nil
	}
	switch cfg.Advisor.Provider {
	case "heuristic":
		return advisor.Local{}, nil
	case "gemini":
		completer, err := advisor.NewGeminiCompleter(ctx, cfg.Advisor.APIKey, cfg.Advisor.Model)
		if err != nil {
			return nil, err
		}
		return advisor.NewLLMAdvisor(completer), nil
	default:
		return nil, fmt.Errorf("unknown advisor provider: %s", cfg.Advisor.Provider)
	}
}
