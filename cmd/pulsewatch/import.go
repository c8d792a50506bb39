package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pulsewatch/internal/seed"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load monitors, maintenance windows and API keys from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		doc, err := seed.Parse(f)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := openStore(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		rep, err := seed.Import(ctx, store, doc, logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "imported %d monitors, %d maintenance windows, %d api keys (%d skipped)\n",
			rep.Monitors, rep.Windows, rep.Keys, rep.Skipped)
		for _, k := range rep.Issued {
			fmt.Fprintf(out, "api key %q for project %s: %s\n", k.Name, k.ProjectID, k.Key)
		}
		return nil
	},
}
