package main

import (
	"SwapLedger/internal/config"
	"SwapLedger/internal/observability"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "swapledger",
		Short:        "Token ledger with constant-product pools and staking",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("postgres-dsn", "", "Postgres DSN")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Recover from the event log and serve calls",
		RunE:  runServe,
	}
	serveCmd.Flags().String("nats-url", "", "NATS URL")
	serveCmd.Flags().Bool("disable-nats", false, "serve HTTP submissions only")
	serveCmd.Flags().String("grpc-addr", ":9090", "gRPC listen address")
	serveCmd.Flags().String("http-addr", ":8080", "HTTP API listen address")
	serveCmd.Flags().String("metrics-addr", ":9091", "Prometheus listen address")
	serveCmd.Flags().Int("persist-batch-size", 50, "events per persistence flush")
	serveCmd.Flags().Duration("persist-flush-timeout", 10*time.Millisecond, "maximum persistence batch delay")
	serveCmd.Flags().Int64("snapshot-interval", 100_000, "applied calls between snapshots, 0 disables")
	serveCmd.Flags().StringSlice("genesis", nil, "native allocations (comma-separated address=amount)")
	root.AddCommand(serveCmd)

	migrateCmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE:      runMigrate,
	}
	root.AddCommand(migrateCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay the event log, check every state hash and the projections",
		RunE:  runVerify,
	}
	verifyCmd.Flags().StringSlice("genesis", nil, "native allocations (comma-separated address=amount)")
	root.AddCommand(verifyCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against given reserves",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("amount-in", "", "amount paid in (decimal units)")
	quoteCmd.Flags().String("reserve-in", "", "reserve of the asset paid in (decimal units)")
	quoteCmd.Flags().String("reserve-out", "", "reserve of the asset paid out (decimal units)")
	quoteCmd.Flags().Uint8("decimals-in", 18, "decimals of the asset paid in")
	quoteCmd.Flags().Uint8("decimals-out", 18, "decimals of the asset paid out")
	quoteCmd.Flags().Int64("fee-num", 997, "fee numerator")
	quoteCmd.Flags().Int64("fee-den", 1000, "fee denominator")
	root.AddCommand(quoteCmd)

	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.PostgresDSN == "" {
		return config.Config{}, fmt.Errorf("postgres dsn is required")
	}
	return cfg, nil
}

func newLogger(cfg config.Config) zerolog.Logger {
	return observability.NewLoggerWithLevel("swapledger", observability.ParseLogLevel(cfg.LogLevel))
}
