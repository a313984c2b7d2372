package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/mhai/internal/alert"
	"github.com/zulandar/mhai/internal/alert/discord"
	"github.com/zulandar/mhai/internal/alert/slack"
	"github.com/zulandar/mhai/internal/config"
	"github.com/zulandar/mhai/internal/db"
	"github.com/zulandar/mhai/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference backend",
		Long: "Starts the chat and diary API backed by the configured database. Chat\n" +
			"messages are answered inline, diary entries by a background worker pool.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to mhai config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Server.Port
	}

	gormDB, err := db.Connect(cfg.Server.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	notifier, err := newNotifier(cfg.Alerts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	return server.Start(ctx, server.StartOpts{
		Opts: server.Opts{
			DB:         gormDB,
			Answer:     cfg.Server.Answer,
			SessionTTL: time.Duration(cfg.Server.SessionTTLHours) * time.Hour,
			Notifier:   notifier,
		},
		Port: port,
		Out:  cmd.OutOrStdout(),
	})
}

// newNotifier picks the alert sink for the configured platform. Without one,
// alerts go to out.
func newNotifier(cfg config.AlertsConfig, out io.Writer) (alert.Notifier, error) {
	switch cfg.Platform {
	case "":
		return alert.Log{Out: out}, nil
	case config.PlatformSlack:
		return slack.New(slack.Opts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Channel})
	case config.PlatformDiscord:
		return discord.New(discord.Opts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Channel})
	default:
		return nil, fmt.Errorf("unknown alert platform %q", cfg.Platform)
	}
}
