// Package cli implements the timeturner CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/timeturner/internal/config"
	"github.com/rcliao/timeturner/internal/logging"
	"github.com/rcliao/timeturner/internal/store"
)

var (
	configPath string
	dbPath     string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "timeturner",
	Short: "Archive and browse periodic CSV snapshots",
	Long: "Stores timestamped CSV snapshots per host and title in SQLite, keeps the last 14 days, " +
		"and serves them for browsing by day and minute.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $TIMETURNER_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $TIMETURNER_DB or database.path from config)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("TIMETURNER_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dbPath != "" {
		cfg.Database.Path = dbPath
	} else if env := os.Getenv("TIMETURNER_DB"); env != "" {
		cfg.Database.Path = env
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.SQLiteStore
}

func (e *env) Close() {
	e.store.Close()
	e.logger.Sync()
}

func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path,
		store.WithLocation(loc),
		store.WithLogger(logger.Named("store")),
		store.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, logger: logger, store: s}, nil
}

func printJSON(cmd *cobra.Command, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
