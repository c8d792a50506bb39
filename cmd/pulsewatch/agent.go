package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pulsewatch/internal/agent"
)

var agentOnce bool

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Push this host's CPU, memory and disk usage to a pulsewatch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		a, err := agent.New(cfg.Agent, agent.HostSource{DiskPath: cfg.Agent.DiskPath}, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if agentOnce {
			_, err := a.Push(ctx)
			return err
		}
		return a.Run(ctx)
	},
}

func init() {
	agentCmd.Flags().BoolVar(&agentOnce, "once", false, "push a single sample and exit")
}
