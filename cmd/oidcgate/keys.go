package main

import (
	"context"
	"net/http"
	"time"

	jwtkit "github.com/PaulFidika/oidcgate/jwt"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newKeysCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Fetch the configured keystore and list its keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			fetch, err := keystoreSource(ctx, cfg, nil, &http.Client{Timeout: timeout}, log)
			if err != nil {
				return err
			}
			ks, err := jwtkit.LoadKeystore(ctx, fetch, cfg.Dev)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"KID", "KTY", "ALG", "USE"})
			for _, kid := range ks.KeyIDs() {
				k, err := ks.Resolve(kid)
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{kid, k.KeyType().String(), k.Algorithm().String(), k.KeyUsage()})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "fetch timeout")
	return cmd
}
