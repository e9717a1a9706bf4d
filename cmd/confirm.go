package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/coaching-payments/pkg/logger"
)

var skipEmail bool

// confirmCmd settles a session by hand, e.g. when the browser redirect
// never reached the server.
var confirmCmd = &cobra.Command{
	Use:   "confirm <session-id>",
	Short: "Confirm a checkout session",
	Long:  `Confirm a completed checkout session and print its receipt, exactly as the HTTP endpoint would.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirm,
}

func init() {
	confirmCmd.Flags().BoolVar(&skipEmail, "skip-email", false, "do not send the confirmation email")
}

func runConfirm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log := logger.Init(cfg.Environment, cfg.Observability.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	receipt, err := deps.Service.Confirm(ctx, args[0], skipEmail)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(receipt); err != nil {
		return fmt.Errorf("failed to encode receipt: %w", err)
	}
	return nil
}
