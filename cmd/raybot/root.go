package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Proton-105/raybot/pkg/config"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

type rootOptions struct {
	configFile string
	env        string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "raybot",
		Short: "Telegram custodial wallet and swap bot for Solana",
		Long: `raybot gives every Telegram user a custodial Solana wallet and lets them
check prices and balances, send SOL and swap tokens through Jupiter.

Examples:
  raybot serve
  raybot serve --config configs/production.yaml --env production
  raybot migrate
  raybot version`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default configs/$APP_ENV.yaml)")
	cmd.PersistentFlags().StringVar(&opts.env, "env", "", "environment name used with --config")

	cmd.AddCommand(newServeCmd(opts), newMigrateCmd(opts), newVersionCmd())
	return cmd
}

// load reads configuration from --config when given, otherwise from APP_ENV.
func (o *rootOptions) load() (*config.Config, *viper.Viper, error) {
	if o.configFile == "" {
		return config.Load()
	}

	env := o.env
	if env == "" {
		env = "custom"
	}
	return config.LoadFile(o.configFile, env)
}
