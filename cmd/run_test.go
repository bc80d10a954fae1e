package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/birthdays"
	"github.com/xkilldash9x/salvator/internal/orchestrator"
	"github.com/xkilldash9x/salvator/internal/store"
)

func recentRuns(t *testing.T, home string) []store.RunSummary {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(home, ".salvator", "history.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	return runs
}

func TestRun_AllSent(t *testing.T) {
	env := newTestEnv(t, quietConfig+`
metrics:
  textfile_path: ~/metrics/salvator.prom
`)
	withAccount(t)
	f := stubBrowser(t)
	entries := testEntries()
	f.loginSucceeds()
	f.scraper.On("Scrape", mock.Anything, f.session).Return(entries, nil)
	f.dispatcher.On("Dispatch", mock.Anything, f.session, entries).
		Return(outcomes(entries, schemas.Sent(), schemas.Sent()))

	stdout, _, err := executeCommand(t, "", "run")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Jane Doe - 3")
	assert.Contains(t, stdout, "Sent 2")
	assert.NotNil(t, f.ledger, "history store doubles as the greeted ledger")
	f.session.AssertNumberOfCalls(t, "Close", 1)

	runs := recentRuns(t, env.home)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Sent)
	assert.Empty(t, runs[0].FailedStage)

	prom, err := os.ReadFile(filepath.Join(env.home, "metrics", "salvator.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "salvator_last_run_success 1")
}

func TestRun_PartialExitsNonzero(t *testing.T) {
	newTestEnv(t, quietConfig)
	withAccount(t)
	f := stubBrowser(t)
	entries := testEntries()
	f.loginSucceeds()
	f.scraper.On("Scrape", mock.Anything, f.session).Return(entries, nil)
	f.dispatcher.On("Dispatch", mock.Anything, f.session, entries).
		Return(outcomes(entries, schemas.Sent(), schemas.Failed(schemas.KindComposerNotFound, errors.New("no editor"))))

	stdout, _, err := executeCommand(t, "", "run")

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, stdout, "failed: ComposerNotFound (no editor)")
	assert.Contains(t, stdout, "Failed 1")
}

func TestRun_JSON(t *testing.T) {
	newTestEnv(t, quietConfig)
	withAccount(t)
	f := stubBrowser(t)
	entries := testEntries()
	f.loginSucceeds()
	f.scraper.On("Scrape", mock.Anything, f.session).Return(entries, nil)
	f.dispatcher.On("Dispatch", mock.Anything, f.session, entries).
		Return(outcomes(entries, schemas.Sent(), schemas.Skipped(schemas.SkipAlreadyGreeted)))

	stdout, _, err := executeCommand(t, "", "run", "--json")
	require.Error(t, err, "one entry was not sent")

	var report schemas.RunReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Skipped)
	assert.NotEmpty(t, report.RunID)
}

func TestRun_DryRun(t *testing.T) {
	newTestEnv(t, quietConfig)
	withAccount(t)
	f := stubBrowser(t)
	entries := testEntries()
	f.loginSucceeds()
	f.scraper.On("Scrape", mock.Anything, f.session).Return(entries, nil)
	f.dispatcher.On("Dispatch", mock.Anything, f.session, entries).
		Return(outcomes(entries, schemas.Skipped(schemas.SkipDryRun), schemas.Skipped(schemas.SkipDryRun)))

	_, _, err := executeCommand(t, "", "run", "--dry-run")
	require.NoError(t, err, "a dry run with no failures succeeds")
	require.NotNil(t, f.cfg)
	assert.True(t, f.cfg.Greeting.DryRun)
}

func TestRun_FlagsReachRunConfig(t *testing.T) {
	newTestEnv(t, quietConfig)
	withAccount(t)
	f := stubBrowser(t)
	f.loginSucceeds()
	f.scraper.On("Scrape", mock.Anything, f.session).Return(nil, nil)

	_, _, err := executeCommand(t, "", "run",
		"--headful", "--courtesy-delay", "2s",
		"--selector", "composer=textarea.custom",
		"--selector", "composer=div[role=textbox]")
	require.NoError(t, err)

	require.NotNil(t, f.cfg)
	assert.False(t, f.cfg.Browser.Headless)
	assert.Equal(t, 2*time.Second, f.cfg.Greeting.CourtesyDelay)
	assert.Equal(t, []string{"textarea.custom", "div[role=textbox]"}, f.cfg.Site.Selectors.Composer)
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_MissingCredentials(t *testing.T) {
	newTestEnv(t, quietConfig)
	f := stubBrowser(t)

	_, stderr, err := executeCommand(t, "", "run")

	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, stderr, "salvator env")
	assert.Zero(t, f.opened, "no browser without an account")
}

func TestRun_FailureIsRecorded(t *testing.T) {
	env := newTestEnv(t, quietConfig)
	withAccount(t)
	f := stubBrowser(t)
	f.loginSucceeds()
	f.scraper.On("Scrape", mock.Anything, f.session).
		Return(nil, &birthdays.ScrapeError{URL: "https://site.test/birthdays", Reason: "birthday list never rendered"})

	_, _, err := executeCommand(t, "", "run")

	var runErr *orchestrator.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, orchestrator.StageScrape, runErr.Stage)
	assert.Equal(t, 1, ExitCode(err))

	runs := recentRuns(t, env.home)
	require.Len(t, runs, 1)
	assert.Equal(t, "scrape", runs[0].FailedStage)
	assert.Equal(t, runErr.RunID, runs[0].RunID)
	assert.Contains(t, runs[0].Error, "birthday list never rendered")
}

func TestRun_DispatchFailureRecordsSentGreetings(t *testing.T) {
	env := newTestEnv(t, quietConfig)
	withAccount(t)
	f := stubBrowser(t)
	f.loginSucceeds()
	entries := testEntries()
	f.scraper.On("Scrape", mock.Anything, f.session).Return(entries, nil)
	f.dispatcher.On("Dispatch", mock.Anything, f.session, entries).
		Return(outcomes(entries[:1], schemas.Sent()))

	_, _, err := executeCommand(t, "", "run")

	var runErr *orchestrator.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, orchestrator.StageDispatch, runErr.Stage)

	runs := recentRuns(t, env.home)
	require.Len(t, runs, 1)
	assert.Equal(t, "dispatch", runs[0].FailedStage)
	assert.Equal(t, 1, runs[0].Sent)

	s, err := store.OpenSQLite(context.Background(), filepath.Join(env.home, ".salvator", "history.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()
	greeted, err := s.Greeted(context.Background(), entries[0].ProfileRef, time.Now())
	require.NoError(t, err)
	assert.True(t, greeted, "a rerun must not greet Jane twice")
}

func TestRun_FailureJSON(t *testing.T) {
	newTestEnv(t, quietConfig)
	withAccount(t)
	f := stubBrowser(t)
	f.auth.On("Login", mock.Anything, f.session, mock.Anything).Return(schemas.AuthInvalidCredentials, nil)

	stdout, _, err := executeCommand(t, "", "run", "--json")
	require.Error(t, err)

	var failure runFailure
	require.NoError(t, json.Unmarshal([]byte(stdout), &failure))
	assert.Equal(t, "login", failure.Stage)
	assert.NotContains(t, stdout, "s3cret-pass")
}

func TestRun_BadSelectorFlag(t *testing.T) {
	newTestEnv(t, quietConfig)
	withAccount(t)
	f := stubBrowser(t)

	_, _, err := executeCommand(t, "", "run", "--selector", "composer")
	assert.ErrorContains(t, err, "want role=candidate")
	assert.Zero(t, f.opened)
}

func TestParseSelectorOverrides(t *testing.T) {
	got, err := parseSelectorOverrides([]string{"composer=a", " post_button = b ", "composer=c=d"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"composer":    {"a", "c=d"},
		"post_button": {"b"},
	}, got)

	got, err = parseSelectorOverrides(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"composer", "=a", "composer="} {
		_, err := parseSelectorOverrides([]string{bad})
		assert.Error(t, err, bad)
	}
}
