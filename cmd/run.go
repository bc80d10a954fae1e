// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/config"
	"github.com/xkilldash9x/salvator/internal/greeting"
	"github.com/xkilldash9x/salvator/internal/observability"
	"github.com/xkilldash9x/salvator/internal/orchestrator"
	"github.com/xkilldash9x/salvator/internal/store"
)

// historyTimeout bounds the bookkeeping done after a run, which must still
// happen when the run itself was interrupted.
const historyTimeout = 10 * time.Second

// sessionFlags are the browser options shared by every command that logs in.
type sessionFlags struct {
	headful   bool
	selectors []string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.headful, "headful", false, "show the browser window instead of running headless")
	cmd.Flags().StringArrayVar(&f.selectors, "selector", nil,
		"replace the candidates of a selector role, repeatable: --selector composer=textarea --selector composer='div[role=textbox]'")
}

func (f *sessionFlags) runConfig(cfg *config.Config) (orchestrator.RunConfig, error) {
	rc := orchestrator.RunConfigFromConfig(cfg)
	if f.headful {
		rc.Headless = false
	}
	overrides, err := parseSelectorOverrides(f.selectors)
	if err != nil {
		return rc, err
	}
	rc.SelectorOverrides = overrides
	return rc, nil
}

// parseSelectorOverrides groups role=candidate pairs by role, keeping the
// order candidates were given in.
func parseSelectorOverrides(pairs []string) (map[string][]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string][]string)
	for _, p := range pairs {
		role, candidate, ok := strings.Cut(p, "=")
		role, candidate = strings.TrimSpace(role), strings.TrimSpace(candidate)
		if !ok || role == "" || candidate == "" {
			return nil, fmt.Errorf("invalid --selector %q: want role=candidate", p)
		}
		out[role] = append(out[role], candidate)
	}
	return out, nil
}

type runOptions struct {
	sessionFlags
	dryRun        bool
	json          bool
	courtesyDelay time.Duration
}

func newRunCommand(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in and greet everyone whose birthday is today",
		Long: `Logs in to the account, collects today's birthdays and posts one greeting
per person. Exits 0 only when every greeting was sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "compose greetings but never post them")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the run report as JSON")
	cmd.Flags().DurationVar(&opts.courtesyDelay, "courtesy-delay", 0, "pause between greetings (default from config)")
	return cmd
}

func (a *app) run(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	creds, err := a.credentials(cmd)
	if err != nil {
		return err
	}
	rc, err := opts.runConfig(a.cfg)
	if err != nil {
		return err
	}
	if opts.dryRun {
		rc.DryRun = true
	}
	if cmd.Flags().Changed("courtesy-delay") {
		rc.CourtesyDelay = opts.courtesyDelay
	}

	repo := a.openHistory(ctx)
	var ledger greeting.Ledger
	if repo != nil {
		defer repo.Close()
		ledger = repo
	}

	orch, err := a.newOrchestrator(ledger)
	if err != nil {
		return err
	}

	started := time.Now()
	report, runErr := orch.Run(ctx, creds, rc)
	finished := time.Now()

	a.recordRun(ctx, repo, report, runErr, started, finished)
	a.exportMetrics(report, runErr, started, finished)

	if runErr != nil {
		if opts.json {
			_ = writeJSON(out, runFailure{Error: runErr.Error(), Stage: stageOf(runErr)})
		}
		return runErr
	}

	if opts.json {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		renderReport(out, report)
	}

	if ctx.Err() != nil {
		return &ExitError{Code: 130, Reason: "interrupted"}
	}
	if report.AllSent() || (rc.DryRun && report.Failed == 0) {
		return nil
	}
	return &ExitError{
		Code:   1,
		Reason: fmt.Sprintf("%d of %d greetings were not sent", report.Total-report.Sent, report.Total),
	}
}

type runFailure struct {
	Error string `json:"error"`
	Stage string `json:"stage"`
}

// credentials pulls the account out of the loaded config. When it is
// incomplete the user is pointed at `salvator env` and nothing is launched.
func (a *app) credentials(cmd *cobra.Command) (schemas.Credentials, error) {
	creds := schemas.Credentials{Identifier: a.cfg.Account.Identifier, Secret: a.cfg.Account.Secret}
	if creds.Valid() {
		return creds, nil
	}
	fmt.Fprintln(cmd.ErrOrStderr(), hintStyle.Render(fmt.Sprintf(
		"No account configured. Run `salvator env` or set %s and %s.",
		config.EnvAccountIdentifier, config.EnvAccountSecret)))
	return creds, &ExitError{Code: 2, Reason: "no account configured"}
}

func (a *app) newOrchestrator(ledger greeting.Ledger) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(a.cfg, a.logger, openSession(a.logger), buildComponents(a.logger, ledger))
}

// openHistory opens the run store for a run. A run goes ahead without it;
// it only loses the already-greeted check and its history row.
func (a *app) openHistory(ctx context.Context) store.Repository {
	repo, err := openStore(ctx, a.cfg.Store, a.logger)
	if err != nil {
		if !errors.Is(err, store.ErrDisabled) {
			a.logger.Warn("Run history unavailable, continuing without it", zap.Error(err))
		}
		return nil
	}
	return repo
}

func (a *app) recordRun(ctx context.Context, repo store.Repository, report schemas.RunReport, runErr error, started, finished time.Time) {
	if repo == nil {
		return
	}
	rec := store.RunRecord{Report: report}
	if runErr != nil {
		rec = store.RunRecord{
			Report:      schemas.NewRunReport(runIDOf(runErr), started, finished, outcomesOf(runErr)),
			FailedStage: stageOf(runErr),
			Error:       runErr.Error(),
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()
	if err := repo.SaveRun(ctx, rec); err != nil {
		a.logger.Warn("Failed to record run history", zap.Error(err))
	}
}

func (a *app) exportMetrics(report schemas.RunReport, runErr error, started, finished time.Time) {
	path := a.cfg.Metrics.TextfilePath
	if path == "" {
		return
	}
	m := observability.NewRunMetrics()
	if runErr != nil {
		m.ObserveFailure(stageOf(runErr), started, finished)
	} else {
		m.ObserveReport(report)
	}
	if err := m.WriteTextfile(path); err != nil {
		a.logger.Warn("Failed to write metrics textfile", zap.String("path", path), zap.Error(err))
	}
}

func stageOf(err error) string {
	var re *orchestrator.RunError
	if errors.As(err, &re) {
		return string(re.Stage)
	}
	return "unknown"
}

// outcomesOf returns the greetings a failed run had already handled.
func outcomesOf(err error) []schemas.EntryOutcome {
	var re *orchestrator.RunError
	if errors.As(err, &re) {
		return re.Outcomes
	}
	return nil
}

func runIDOf(err error) string {
	var re *orchestrator.RunError
	if errors.As(err, &re) && re.RunID != "" {
		return re.RunID
	}
	return uuid.NewString()
}
