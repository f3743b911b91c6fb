// Package cli implements the lakectl command line interface.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"shoplake/internal/app"
	"shoplake/internal/config"
	"shoplake/internal/db"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "lakectl",
		Short:         "Lakehouse pipeline CLI",
		Long:          "Command-line interface for the e-commerce lakehouse: trigger runs, generate sample extracts, query the lake, and sync it to object storage.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadDotEnv(envFile)
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to an optional .env file")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// cliEnv is the wired application plus the handles the CLI must close.
type cliEnv struct {
	cfg     *config.Config
	logger  *slog.Logger
	app     *app.App
	writeDB *sql.DB
	readDB  *sql.DB
}

func (e *cliEnv) Close() {
	_ = e.app.Close()
	_ = e.readDB.Close()
	_ = e.writeDB.Close()
}

// openEnv loads config, opens the metastore, runs migrations, and wires the
// application. Callers must Close the result.
func openEnv(ctx context.Context) (*cliEnv, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	writeDB, readDB, err := db.OpenSQLitePair(cfg.MetaDBPath, 4)
	if err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	if err := db.RunMigrations(writeDB); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("migrate metastore: %w", err)
	}

	a, err := app.New(ctx, app.Deps{Cfg: cfg, WriteDB: writeDB, ReadDB: readDB, Logger: logger})
	if err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, err
	}

	return &cliEnv{cfg: cfg, logger: logger, app: a, writeDB: writeDB, readDB: readDB}, nil
}
