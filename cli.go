package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
)

type app struct {
	cfg    *Config
	logger *slog.Logger
	closer io.Closer
}

func (a *app) Close() error {
	return a.closer.Close()
}

func setupApp(cmd *cobra.Command) (*app, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}
	logger, closer, err := newLogger(loggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) openUsageStore() (*UsageStore, error) {
	backend, err := openUsageBackend(a.cfg.UsageBackend, a.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return NewUsageStore(backend, a.cfg.FreeLimit, a.logger), nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gendolf-bot",
		Short:        "AI assistant for Telegram groups with a daily free quota",
		SilenceUsage: true,
		RunE:         runServeCmd,
	}
	root.PersistentFlags().String("env-file", ".env", "optional dotenv file loaded before the environment is read")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bot (default)",
			Args:  cobra.NoArgs,
			RunE:  runServeCmd,
		},
		newStatsCmd(),
		newGrantProCmd(),
		newCompactCmd(),
	)
	return root
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.validateForServe(); err != nil {
		a.logger.Error("missing configuration", "err", err)
		return err
	}
	return serve(cmd.Context(), a)
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	store, err := a.openUsageStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close usage store", "err", err)
		}
	}()

	if cfg.UsageRetainDays > 0 {
		removed, err := store.Compact(cfg.UsageRetainDays)
		if err != nil {
			logger.Error("usage compaction failed", "err", err)
		} else if removed > 0 {
			logger.Info("usage counters compacted", "removed", removed, "retain_days", cfg.UsageRetainDays)
		}
	}

	provider, err := NewProvider(cfg.providerConfig())
	if err != nil {
		if !errors.Is(err, ErrUnknownProvider) {
			return err
		}
		// Keep running: every question gets the unknown-provider reply.
		logger.Error("ai provider not supported", "provider", cfg.AIProvider)
		provider = nil
	}
	responder := NewResponder(provider, NewConversationMemory(defaultMemoryLimit), ResponderOptions{
		MaxTokens: cfg.AIMaxTokens,
		Timeout:   cfg.AITimeout,
	}, logger)

	botApi, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	botApi.Debug = cfg.BotDebug

	bot := NewBot(botApi, botApi.Self, logger)
	bot.setCommands()

	handler := &Handler{
		Bot:   bot,
		Usage: store,
		AI:    responder,
		Config: HandlerConfig{
			FreeLimit:      cfg.FreeLimit,
			AdminID:        cfg.AdminID,
			UpgradeContact: cfg.UpgradeContact,
			Workers:        cfg.Workers,
		},
		Logger: logger,
	}

	logger.Info("bot starting",
		"account", botApi.Self.UserName,
		"provider", cfg.AIProvider,
		"model", cfg.AIModel,
		"free_limit", cfg.FreeLimit,
		"usage_backend", cfg.UsageBackend,
	)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updateConfig.AllowedUpdates = []string{"message", "callback_query"}
	updates := botApi.GetUpdatesChan(updateConfig)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down, waiting for in-flight messages")
		botApi.StopReceivingUpdates()
	}()

	handler.processUpdates(ctx, updates)
	logger.Info("bot stopped")
	return nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print usage statistics from the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openUsageStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats := store.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Active groups today: %s\n", humanize.Comma(int64(stats.ActiveGroupsToday)))
			fmt.Fprintf(out, "Total messages:      %s\n", humanize.Comma(int64(stats.TotalMessages)))
			fmt.Fprintf(out, "Pro groups:          %s\n", humanize.Comma(int64(stats.ProGroups)))
			return nil
		},
	}
}

func newGrantProCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant-pro <chat_id>",
		Short: "Exempt a chat from the daily quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return errors.New(getUserMessage(err))
			}

			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openUsageStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.AddPro(chatID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Group %d upgraded to Pro\n", chatID)
			return nil
		},
	}
}

func newCompactCmd() *cobra.Command {
	var retainDays int
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Drop daily counters older than --retain-days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openUsageStore()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Compact(retainDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s counters\n", humanize.Comma(int64(removed)))
			return nil
		},
	}
	cmd.Flags().IntVar(&retainDays, "retain-days", 30, "days of counters to keep besides today")
	return cmd
}
