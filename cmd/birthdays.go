package cmd

import (
	"github.com/spf13/cobra"
)

type birthdaysOptions struct {
	sessionFlags
	json bool
}

func newBirthdaysCommand(a *app) *cobra.Command {
	opts := &birthdaysOptions{}
	cmd := &cobra.Command{
		Use:     "birthdays",
		Aliases: []string{"bth"},
		Short:   "List today's birthdays without greeting anyone",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.birthdays(cmd, opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the entries as JSON")
	return cmd
}

func (a *app) birthdays(cmd *cobra.Command, opts *birthdaysOptions) error {
	creds, err := a.credentials(cmd)
	if err != nil {
		return err
	}
	rc, err := opts.runConfig(a.cfg)
	if err != nil {
		return err
	}

	// Listing never posts, so the greeted ledger is not needed.
	orch, err := a.newOrchestrator(nil)
	if err != nil {
		return err
	}
	entries, err := orch.Birthdays(cmd.Context(), creds, rc)
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	renderBirthdays(cmd.OutOrStdout(), entries)
	return nil
}
