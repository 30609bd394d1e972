package main

import (
	"fmt"
	"os"

	"github.com/PaulFidika/oidcgate/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "oidcgate",
		Short: "Verify bearer tokens and proxy OAuth token exchanges",
		Long: `oidcgate verifies bearer tokens against an identity provider's signing
keys, applies per-strategy claim policy, and forwards credential exchanges to
the provider's token endpoint. Configuration is read from OIDCGATE_*
environment variables and an optional .env file.`,
		SilenceUsage: true,
		Version:      version,
	}
	cmd.SetVersionTemplate(`{{printf "oidcgate version %s\n" .Version}}`)
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "path to a .env file (default ./.env if present)")

	cmd.AddCommand(newServeCmd(flags), newKeysCmd(flags), newVersionCmd())
	return cmd
}

func loadConfig(flags *rootFlags) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("OIDCGATE_LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the oidcgate version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oidcgate version %s\n", version)
		},
	}
}
