package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sipeed/cardbot/pkg/app"
	"github.com/sipeed/cardbot/pkg/channels/lark"
	"github.com/sipeed/cardbot/pkg/logger"
	"github.com/sipeed/cardbot/pkg/sender"
	"github.com/sipeed/cardbot/pkg/telemetry"
)

func newRunCmd(family *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the bot over the long connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), *family)
		},
	}
}

func runBot(ctx context.Context, family string) error {
	cfg, err := loadConfig(family)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	defer logger.Sync()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, "cardbot")
	if err != nil {
		logger.WarnCF("main", "Tracing disabled", map[string]interface{}{"error": err.Error()})
	}
	defer shutdownTracing(context.Background())

	client := lark.NewClient(cfg.Lark)
	c, err := app.NewContainer(cfg, sender.NewSDKMessenger(client))
	if err != nil {
		return err
	}

	logger.InfoCF("main", "cardbot starting", map[string]interface{}{
		"family": c.Profile.Name,
		"domain": cfg.Lark.BaseDomain,
	})
	return c.Run(ctx, lark.NewChannel(cfg.Lark, c.Router))
}
