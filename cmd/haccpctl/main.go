package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/haccp/internal/config"
	"github.com/dukerupert/haccp/internal/database"
	"github.com/dukerupert/haccp/internal/logging"
	"github.com/dukerupert/haccp/internal/server"
)

var rootCmd = &cobra.Command{
	Use:          "haccpctl",
	Short:        "Operate the HACCP record store and its sheet backup",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().String("db", "", "SQLite database path (or HACCP_DB_PATH env var)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log at debug level")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(structureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is an opened database plus the wired backup engine.
type app struct {
	db     *sql.DB
	srv    *server.Server
	logger *slog.Logger
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		cfg.DBPath = path
	}
	level := cfg.LogLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger := logging.Setup(os.Stderr, level, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	srv, err := server.New(db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{db: db, srv: srv, logger: logger}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
