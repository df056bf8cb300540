package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kmassidik/movegh/internal/app"
	"github.com/kmassidik/movegh/internal/common/config"
	"github.com/kmassidik/movegh/internal/common/db"
	"github.com/kmassidik/movegh/internal/common/logger"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "paymentsctl",
		Short:         "Operator tooling for the movegh payments ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Duration("timeout", time.Minute, "Command timeout")

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(invariantCheckCmd())
	rootCmd.AddCommand(riskCasesCmd())
	rootCmd.AddCommand(escrowCmd())
	rootCmd.AddCommand(treasuryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command runs against
type env struct {
	ctx      context.Context
	services *app.App
	close    func()
}

// setup connects to the configured database and builds the services
// without redis or kafka; outbox rows are published by the API server.
func setup(cmd *cobra.Command) (*env, error) {
	_ = godotenv.Load()

	cfg, err := config.Load("paymentsctl")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New("paymentsctl")
	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	services, err := app.Build(cfg, database, nil, log)
	if err != nil {
		database.Close()
		return nil, err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return &env{
		ctx:      ctx,
		services: services,
		close: func() {
			cancel()
			database.Close()
			log.Sync()
		},
	}, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
