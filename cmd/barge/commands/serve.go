package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/barge/pkg/barge/attention"
	"github.com/jholhewres/barge/pkg/barge/channels"
	"github.com/jholhewres/barge/pkg/barge/channels/discord"
	"github.com/jholhewres/barge/pkg/barge/config"
	"github.com/jholhewres/barge/pkg/barge/history"
	"github.com/jholhewres/barge/pkg/barge/llm"
	"github.com/jholhewres/barge/pkg/barge/persona"
)

// newServeCmd creates the `barge serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the attention daemon",
		Long: `Start barge as a daemon: connect to Discord, watch group traffic
and run the attention scheduler.

Examples:
  barge serve
  barge serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no configuration found, run `barge setup` first")
		}
		return err
	}

	// ── Logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	// ── History store + retention sweep ──
	store, err := history.Open(cfg.History.Path, cfg.History.MaxTurns, logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	sweeper := history.NewSweeper(store, time.Duration(cfg.History.Retention), logger)
	if err := sweeper.Start(cfg.History.SweepSchedule); err != nil {
		return fmt.Errorf("start retention sweep: %w", err)
	}
	defer sweeper.Stop()

	// ── Personas ──
	personas, err := persona.Load(cfg.Personas.Path, logger)
	if err != nil {
		return fmt.Errorf("load personas: %w", err)
	}

	// ── Discord + scheduler ──
	dc := discord.New(cfg.Discord, logger)

	var model attention.ChatModel
	if cfg.API.APIKey != "" || cfg.API.BaseURL != "" {
		model = llm.New(cfg.API, logger)
	} else {
		logger.Warn("no LLM API configured, every firing will be a no-op")
	}

	scheduler := attention.New(cfg.Attention.ToCore(), attention.Deps{
		History:  store,
		Personas: personas,
		Model:    model,
		Outbound: dc,
	}, logger)
	defer scheduler.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := dc.Connect(ctx); err != nil {
		return err
	}
	defer dc.Disconnect()

	logger.Info("barge daemon started")

	// ── Event pump ──
	go func() {
		for evt := range dc.Events() {
			switch evt.Kind {
			case channels.EventMessage:
				scheduler.OnMessage(ctx, evt.Message)
			case channels.EventReplySent:
				scheduler.OnReplySent(ctx, evt.Reply)
			}
		}
	}()

	// ── Wait for shutdown signal ──
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	return nil
}
