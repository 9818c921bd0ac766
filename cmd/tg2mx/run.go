package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/msrd0/tg2mx-bot/internal/bot"
	"github.com/msrd0/tg2mx-bot/internal/importer"
	"github.com/msrd0/tg2mx-bot/internal/matrix"
	"github.com/msrd0/tg2mx-bot/internal/migrate"
	"github.com/msrd0/tg2mx-bot/internal/queue"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type runConfig struct {
	Homeserver       string
	UserID           string
	Password         string
	Admins           string
	TelegramBotToken string
	PollInterval     time.Duration
}

func runConfigFromViper() (runConfig, error) {
	cfg := runConfig{
		Homeserver:       strings.TrimSpace(viper.GetString("matrix.homeserver")),
		UserID:           strings.TrimSpace(viper.GetString("matrix.user_id")),
		Password:         viper.GetString("matrix.password"),
		Admins:           viper.GetString("admins"),
		TelegramBotToken: strings.TrimSpace(viper.GetString("telegram.bot_token")),
		PollInterval:     viper.GetDuration("worker.poll_interval"),
	}
	if cfg.Homeserver == "" {
		return cfg, fmt.Errorf("missing matrix.homeserver (set via --homeserver or TG2MX_MATRIX_HOMESERVER)")
	}
	if cfg.UserID == "" {
		return cfg, fmt.Errorf("missing matrix.user_id (set via --user-id or TG2MX_MATRIX_USER_ID)")
	}
	if cfg.Password == "" {
		return cfg, fmt.Errorf("missing matrix.password (set via TG2MX_MATRIX_PASSWORD)")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in and run the bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			// optional .env file, same keys as the environment
			_ = godotenv.Load()

			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			cfg, err := runConfigFromViper()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runBot(ctx, cfg, logger)
		},
	}

	cmd.Flags().String("homeserver", "", "Homeserver base URL.")
	cmd.Flags().String("user-id", "", "Fully qualified bot user id.")
	cmd.Flags().String("admins", "", "Comma/space-separated admin user ids (empty = open mode).")
	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token used by import jobs.")
	cmd.Flags().Duration("poll-interval", time.Second, "Queue polling interval.")

	_ = viper.BindPFlag("matrix.homeserver", cmd.Flags().Lookup("homeserver"))
	_ = viper.BindPFlag("matrix.user_id", cmd.Flags().Lookup("user-id"))
	_ = viper.BindPFlag("admins", cmd.Flags().Lookup("admins"))
	_ = viper.BindPFlag("telegram.bot_token", cmd.Flags().Lookup("telegram-bot-token"))
	_ = viper.BindPFlag("worker.poll_interval", cmd.Flags().Lookup("poll-interval"))

	return cmd
}

func runBot(ctx context.Context, cfg runConfig, logger *slog.Logger) error {
	client := matrix.NewClient(cfg.Homeserver, cfg.UserID, logger)
	if err := client.Login(ctx, cfg.Password, "tg2mx bot"); err != nil {
		return err
	}
	if err := client.SetDisplayName(ctx, "TG2MX Sticker Import BOT"); err != nil {
		logger.Warn("display_name_set_failed", "error", err.Error())
	}

	store := queue.NewStore(client, logger)
	imp := importer.New(importer.Options{BotToken: cfg.TelegramBotToken}, client, client, client, logger)
	mig := migrate.New(nil, client, logger)

	runner := queue.RunnerFunc(func(ctx context.Context, job queue.QueuedJob) error {
		switch job.Job.Kind {
		case queue.KindImport:
			return imp.Run(ctx, job.Event.RoomID, job.Job.Pack)
		case queue.KindMigrate:
			return mig.Run(ctx, job.Event.RoomID, job.Job.Pack)
		default:
			return fmt.Errorf("unknown job kind %q", job.Job.Kind)
		}
	})

	worker := queue.NewWorker(store, client, runner, cfg.PollInterval, logger)
	b := bot.New(client, store, bot.NewGate(cfg.Admins), logger)

	// Both loops live and die together: the process ends as soon as
	// either returns.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return worker.Run(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown")
		return nil
	}
	return err
}
