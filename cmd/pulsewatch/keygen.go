package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pulsewatch/internal/api"
	"pulsewatch/internal/seed"
)

var (
	keyProject string
	keyName    string
	keyPerms   []string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create an API key for a project and print it once with its hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		doc := &seed.File{APIKeys: []seed.KeySpec{{
			ProjectID:   keyProject,
			Name:        keyName,
			Permissions: keyPerms,
		}}}
		if err := seed.Validate(doc); err != nil {
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
		for _, k := range rep.Issued {
			fmt.Fprintln(cmd.OutOrStdout(), k.Key)
			fmt.Fprintf(cmd.OutOrStdout(), "sha256 %s\n", api.HashKey(k.Key))
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keyProject, "project", "", "project id the key belongs to")
	keygenCmd.Flags().StringVar(&keyName, "name", "", "key name")
	keygenCmd.Flags().StringSliceVar(&keyPerms, "perm", []string{"heartbeat:write"}, "permission to grant (repeatable)")
	keygenCmd.MarkFlagRequired("project")
	keygenCmd.MarkFlagRequired("name")
}
