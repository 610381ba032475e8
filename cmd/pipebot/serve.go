package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scottdmilner/pipebot/internal/admin"
	"github.com/scottdmilner/pipebot/internal/assets"
	"github.com/scottdmilner/pipebot/internal/config"
	"github.com/scottdmilner/pipebot/internal/discord"
	"github.com/scottdmilner/pipebot/internal/lock"
	"github.com/scottdmilner/pipebot/internal/log"
	"github.com/scottdmilner/pipebot/internal/metrics"
	"github.com/scottdmilner/pipebot/internal/report"
	"github.com/scottdmilner/pipebot/internal/tracker"
	"github.com/scottdmilner/pipebot/internal/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, envFile := globalPaths(cmd)
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, configPath)
		},
	}
}

// serve wires every component and blocks until ctx ends or one fails.
func serve(ctx context.Context, cfg *config.Config, configPath string) error {
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("pipebot starting", "version", version, "config", configPath)

	pidLock, err := lock.AcquirePIDLock(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", cfg.Service.LockPath, "error", err)
		return err
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	errCh := make(chan error, 2)

	var adminServer *admin.Server
	if cfg.Admin.Enabled {
		adminServer = admin.New(admin.FromConfig(cfg.Admin), m.Handler(), log.WithComponent("admin"))
		go func() {
			if err := adminServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("admin: %w", err)
			}
		}()
	}

	gh, err := tracker.New(tracker.OptionsFromConfig(cfg.GitHub))
	if err != nil {
		return fmt.Errorf("github client: %w", err)
	}

	store, err := assetStore(ctx, cfg.Assets, gh)
	if err != nil {
		return fmt.Errorf("asset store: %w", err)
	}
	logger.Info("asset store configured", "backend", cfg.Assets.Backend, "namespace", cfg.Assets.Namespace)

	pipeline := report.NewPipeline(
		gh,
		assets.NewUploader(store, m, log.WithComponent("assets")),
		assets.NewHTTPDownloader(&http.Client{Timeout: cfg.GitHub.RequestTimeout}, cfg.Assets.MaxDownloadBytes),
		cfg.Report.Labels,
		m,
		log.WithComponent("report"),
	)
	command := report.NewCommand(pipeline, cfg.Report.FormTimeout, log.WithComponent("report"))

	bot, err := discord.New(cfg.Discord, command, log.WithComponent("discord"))
	if err != nil {
		return err
	}
	discordReady := make(chan struct{})
	webhookCfg, err := webhook.FromConfig(cfg)
	if err != nil {
		return err
	}
	webhookServer, err := webhook.New(webhookCfg, discord.NewSink(bot.Session()), m, log.WithComponent("webhook"))
	if err != nil {
		return err
	}
	if adminServer != nil {
		adminServer.AddCheck(admin.ChannelCheck("discord", discordReady))
		adminServer.AddCheck(admin.ChannelCheck("webhooks", webhookServer.Ready()))
	}

	if err := bot.Open(ctx); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	defer bot.Close()
	close(discordReady)

	go func() {
		if err := webhookServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()

	logger.Info("pipebot running (press Ctrl+C to stop)",
		"repository", gh.Repository(),
		"endpoints", len(webhookCfg.Endpoints),
	)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return err
	}

	logger.Info("pipebot stopped")
	return nil
}

// assetStore selects the attachment backend.
func assetStore(ctx context.Context, ac config.AssetsConfig, gh *tracker.Client) (assets.Store, error) {
	switch ac.Backend {
	case "s3":
		s3Store, err := assets.NewS3StoreFromConfig(ctx, ac)
		if err != nil {
			return nil, err
		}
		return s3Store, nil
	case "github", "":
		return assets.NewGitHubStore(gh, ac.Namespace), nil
	default:
		return nil, &config.ConfigurationError{Field: "assets.backend", Message: fmt.Sprintf("unknown backend %q", ac.Backend)}
	}
}
