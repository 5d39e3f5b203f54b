// Command cardbot runs an interactive-card bot family on the open platform,
// or simulates one locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sipeed/cardbot/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cardbot: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var family string
	root := &cobra.Command{
		Use:           "cardbot",
		Short:         "Interactive-card bots for Feishu/Lark",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&family, "family", "", "Bot family (overrides BOT_FAMILY): echo, alarm or approval")
	root.AddCommand(newRunCmd(&family), newSimulateCmd(&family))
	return root
}

// loadConfig reads the environment and applies the --family override.
func loadConfig(family string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.SetFamily(family)
	return cfg, nil
}
