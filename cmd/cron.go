package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/salvator/internal/schedule"
)

func newCronCommand(a *app) *cobra.Command {
	cron := &cobra.Command{
		Use:   "cron",
		Short: "Manage the crontab entry that runs salvator every day",
	}
	cron.AddCommand(newCronInstallCommand(a), newCronRemoveCommand(a), newCronListCommand(a))
	return cron
}

func newCronInstallCommand(a *app) *cobra.Command {
	var expression string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install or replace the daily run entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("schedule") {
				expression = a.cfg.Schedule.Expression
			}
			binary := a.cfg.Schedule.Binary
			if binary == "" {
				exe, err := osExecutable()
				if err != nil {
					return fmt.Errorf("failed to locate the salvator binary, set schedule.binary: %w", err)
				}
				binary = exe
			}

			s := schedule.New(newCrontab(), a.logger)
			line, err := s.Install(cmd.Context(), expression, schedule.Command(binary, a.configPath))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sentStyle.Render("Installed:"), line)
			return nil
		},
	}
	cmd.Flags().StringVar(&expression, "schedule", "", "five-field cron expression (default from schedule.expression)")
	return cmd
}

func newCronRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Remove the salvator entries from the crontab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := schedule.New(newCrontab(), a.logger).Remove(cmd.Context())
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), skippedStyle.Render("No salvator entry installed."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), sentStyle.Render(fmt.Sprintf("Removed %d entry(s).", n)))
			return nil
		},
	}
}

func newCronListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the installed salvator entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := schedule.New(newCrontab(), a.logger).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), skippedStyle.Render("No salvator entry installed."))
				return nil
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}
