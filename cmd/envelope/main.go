/*
main.go - Application entry point

PURPOSE:
  The envelope command runs the simulation engine from a terminal and
  serves the HTTP API. Configuration comes from a YAML file, ENVELOPE_*
  environment variables and flags, in increasing precedence. A .env file
  in the working directory is loaded first.

COMMANDS:
  serve      Start the HTTP API
  simulate   Run one simulation from a JSON input file
  reconcile  Compare a dataset or stored run with a reference dataset
  import     Import a transaction file into the ledger
  version    Print version information

CONFIG KEYS:
  server.port         HTTP port (default 8080)
  database.path       SQLite path (default envelope.db, ":memory:" allowed)
  logging.level       debug, info, warn, error
  logging.format      console, json
  engine.max_days     Longest simulation window in days
  engine.start_full   Envelopes start at capacity (default true)
  engine.parallelism  Categories simulated concurrently (0 = GOMAXPROCS)

EXAMPLES:
  envelope serve --port 3000
  ENVELOPE_DATABASE_PATH=:memory: envelope serve
  envelope simulate --policy slush-fund --input budget.json --out result.json

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
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

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/warp/envelope-engine/api"
	"github.com/warp/envelope-engine/generic"
	"github.com/warp/envelope-engine/store/sqlite"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = &cobra.Command{
		Use:   "envelope",
		Short: "Envelope budget simulation and reconciliation engine",
		Long: `envelope simulates personal-finance envelopes day by day or month by month
from a ledger of dated transactions, and reconciles the result against a
reference dataset cell by cell.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./envelope.yaml)")
	rootCmd.PersistentFlags().String("db", "envelope.db", "SQLite database path")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	_ = viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("engine.max_days", generic.DefaultMaxDays)
	viper.SetDefault("engine.start_full", true)
	viper.SetDefault("engine.parallelism", 0)

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, FormatError(err.Error()))
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/envelope")
		}
		viper.SetConfigName("envelope")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ENVELOPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return setupLogging()
}

func setupLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	switch format {
	case "console":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// engineOptions reads the engine.* keys.
func engineOptions() api.Options {
	return api.Options{
		Calendar:    generic.CalendarOptions{MaxDays: viper.GetInt("engine.max_days")},
		Parallelism: viper.GetInt("engine.parallelism"),
		StartEmpty:  !viper.GetBool("engine.start_full"),
		Logger:      slog.Default(),
	}
}

// openStore opens the configured database and wires a handler over it.
func openStore() (*sqlite.Store, *api.Handler, error) {
	dbPath := viper.GetString("database.path")
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	return store, api.NewHandler(store, engineOptions()), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "envelope %s\n", version)
		},
	}
}
