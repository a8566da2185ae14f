package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Proton-105/raybot/internal/database"
	"github.com/Proton-105/raybot/migrations"
	"github.com/Proton-105/raybot/pkg/logger"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending transaction history migrations",
		Long: `Apply the SQL migrations for the transaction history table.
The embedded migrations are used unless --dir points at a directory of *.up.sql files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("database.dsn is not set; transaction history is disabled")
			}

			log := logger.New(cfg.Log, false)
			defer log.Close()

			ctx := cmd.Context()
			db, err := database.Open(ctx, cfg.Database.DSN, database.Options{
				MaxOpenConns:    cfg.Database.MaxOpenConns,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			})
			if err != nil {
				return err
			}
			defer db.Close()

			var fsys fs.FS = migrations.FS
			if dir != "" {
				fsys = os.DirFS(dir)
			}

			count, err := database.NewMigrator(db, log.Logger).Apply(ctx, fsys, ".")
			if err != nil {
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "✗ migration failed: %v\n", err)
				return err
			}

			if count == 0 {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
				return nil
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Applied %d migration(s).\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")
	return cmd
}
