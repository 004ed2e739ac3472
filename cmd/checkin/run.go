package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ytget/checkin"
	"github.com/ytget/checkin/config"
	"github.com/ytget/checkin/errs"
	"github.com/ytget/checkin/internal/logger"
	"github.com/ytget/checkin/report"
)

func newRunCmd(cfgFile *string) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sign in every configured account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *cfgFile
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
				path = ""
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			l, err := logger.CreateLoggerFromConfig(&cfg.Log)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			logger.SetGlobalLogger(l)
			defer func() { _ = l.Sync() }()

			runner, tasks, err := checkin.FromConfig(cfg)
			if err != nil {
				return err
			}
			if concurrency > 0 {
				runner.WithConcurrency(concurrency)
			}
			summary, err := runner.Run(cmd.Context(), tasks)
			if err != nil {
				if errors.Is(err, errs.ErrNoAccounts) {
					fmt.Fprintln(cmd.ErrOrStderr(), "No accounts configured in", *cfgFile)
				}
				return err
			}
			report.Table(cmd.OutOrStdout(), summary)
			if summary.Failed() > 0 {
				return errFailures
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override run.concurrency")
	return cmd
}
