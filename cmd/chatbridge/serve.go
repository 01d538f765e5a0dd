package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayops/chatbridge/internal/bridge"
	"github.com/relayops/chatbridge/internal/bridge/discord"
	"github.com/relayops/chatbridge/internal/bridge/slack"
	"github.com/relayops/chatbridge/internal/config"
	"github.com/relayops/chatbridge/internal/db"
	"github.com/relayops/chatbridge/internal/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge API server",
		Long:  "Connects to the database and the configured chat platform, then serves the bridge HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "chatbridge.yaml", "path to chatbridge config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s (platform: %s)\n", configPath, cfg.Bridge.Platform)

	gormDB, err := db.Connect(cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to MySQL at %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	gateway, err := createGateway(cfg)
	if err != nil {
		return err
	}
	defer gateway.Close()

	timeout := time.Duration(cfg.Bridge.GatewayTimeoutSec) * time.Second

	feed := bridge.NewFeed()
	reconciler, err := bridge.NewReconciler(bridge.ReconcilerOpts{
		DB:             gormDB,
		Gateway:        gateway,
		GatewayTimeout: timeout,
	})
	if err != nil {
		return err
	}
	relay, err := bridge.NewRelay(bridge.RelayOpts{
		DB:             gormDB,
		Gateway:        gateway,
		Reconciler:     reconciler,
		Feed:           feed,
		GatewayTimeout: timeout,
	})
	if err != nil {
		return err
	}
	synchronizer, err := bridge.NewStatusSynchronizer(bridge.StatusSynchronizerOpts{
		DB:             gormDB,
		Gateway:        gateway,
		Feed:           feed,
		GatewayTimeout: timeout,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cfg.Bridge.Digest.Enabled {
		digest, err := bridge.NewDigest(bridge.DigestOpts{
			DB:             gormDB,
			Gateway:        gateway,
			Cron:           cfg.Bridge.Digest.Cron,
			GatewayTimeout: timeout,
		})
		if err != nil {
			return err
		}
		go digest.Run(ctx)
		fmt.Fprintf(out, "Digest scheduled (%s)\n", cfg.Bridge.Digest.Cron)
	}

	// Platforms that push status actions over a socket (Discord components)
	// feed them back through the synchronizer. Slack delivers the same
	// actions over the /api/slack/interactive webhook instead.
	if src, ok := gateway.(bridge.ActionSource); ok {
		go pumpActions(ctx, src, synchronizer)
	}

	return server.Start(ctx, server.StartOpts{
		Relay:        relay,
		Synchronizer: synchronizer,
		Feed:         feed,
		Port:         cfg.Server.Port,
		Out:          out,
	})
}

// createGateway builds the platform gateway from the config.
func createGateway(cfg *config.Config) (bridge.Gateway, error) {
	switch cfg.Bridge.Platform {
	case "slack":
		return slack.New(slack.GatewayOpts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
	case "discord":
		return discord.New(discord.GatewayOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
	default:
		return nil, fmt.Errorf("bridge: unsupported platform %q", cfg.Bridge.Platform)
	}
}

// pumpActions applies channel-originated status actions until ctx is
// cancelled or the source closes its channel.
func pumpActions(ctx context.Context, src bridge.ActionSource, sync *bridge.StatusSynchronizer) {
	for {
		select {
		case <-ctx.Done():
			return
		case action, ok := <-src.Actions():
			if !ok {
				return
			}
			if _, err := sync.ApplyStatusChange(ctx, action.SessionID, action.ActorID, action.ActionID); err != nil {
				log.Printf("bridge: status action %s on session %s: %v", action.ActionID, action.SessionID, err)
			}
		}
	}
}
