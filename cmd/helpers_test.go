package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/config"
	"github.com/xkilldash9x/salvator/internal/greeting"
	"github.com/xkilldash9x/salvator/internal/mocks"
	"github.com/xkilldash9x/salvator/internal/observability"
	"github.com/xkilldash9x/salvator/internal/orchestrator"
)

func TestMain(m *testing.M) {
	// Tests point HOME at temp dirs; the cache would pin the first one.
	homedir.DisableCache = true
	os.Exit(m.Run())
}

// quietConfig keeps test output clean and off the real home directory.
const quietConfig = `
logger:
  level: error
  log_file: ""
auth:
  reuse_cookies: false
`

type testEnv struct {
	home       string
	configPath string
}

// newTestEnv points HOME at a temp dir and writes config to its default
// location. Account variables are cleared so tests opt in explicitly.
func newTestEnv(t *testing.T, yaml string) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.EnvAccountIdentifier, "")
	t.Setenv(config.EnvAccountSecret, "")

	dir := filepath.Join(home, ".salvator")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	return &testEnv{home: home, configPath: path}
}

func withAccount(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvAccountIdentifier, "jane@example.com")
	t.Setenv(config.EnvAccountSecret, "s3cret-pass")
}

// executeCommand runs a fresh root command and captures both streams.
func executeCommand(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// -- Fake Browser --

// fakeBrowser replaces the Chrome session and the production workers with
// mocks for the duration of a test.
type fakeBrowser struct {
	session    *mocks.MockSession
	auth       *mocks.MockAuthenticator
	scraper    *mocks.MockScraper
	dispatcher *mocks.MockDispatcher

	opened int
	ledger greeting.Ledger
	cfg    *config.Config
}

func stubBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	f := &fakeBrowser{
		session:    mocks.NewMockSession(),
		auth:       new(mocks.MockAuthenticator),
		scraper:    new(mocks.MockScraper),
		dispatcher: new(mocks.MockDispatcher),
	}
	f.session.On("Close").Return(nil)
	f.session.On("LoadCookies", mock.Anything, mock.Anything).Return(0, nil).Maybe()
	f.session.On("SaveCookies", mock.Anything, mock.Anything).Return(1, nil).Maybe()

	origOpen, origBuild := openSession, buildComponents
	t.Cleanup(func() { openSession, buildComponents = origOpen, origBuild })

	openSession = func(*zap.Logger) orchestrator.SessionOpener {
		return func(ctx context.Context, cfg *config.Config) (orchestrator.Session, error) {
			f.opened++
			return f.session, nil
		}
	}
	buildComponents = func(_ *zap.Logger, ledger greeting.Ledger) orchestrator.ComponentFactory {
		f.ledger = ledger
		return func(cfg *config.Config) (orchestrator.Components, error) {
			f.cfg = cfg
			return orchestrator.Components{Auth: f.auth, Scraper: f.scraper, Dispatcher: f.dispatcher}, nil
		}
	}
	return f
}

func (f *fakeBrowser) loginSucceeds() {
	f.auth.On("Login", mock.Anything, f.session, mock.Anything).Return(schemas.AuthAuthenticated, nil)
}

func testEntries() []schemas.BirthdayEntry {
	return []schemas.BirthdayEntry{
		{DisplayName: "Jane Doe - 3", ProfileRef: "https://site.test/jane", RawLabel: "Jane Doe 3"},
		{DisplayName: "Ann Lee", ProfileRef: "https://site.test/ann", RawLabel: "Ann Lee"},
	}
}

func outcomes(entries []schemas.BirthdayEntry, results ...schemas.DispatchOutcome) []schemas.EntryOutcome {
	out := make([]schemas.EntryOutcome, len(entries))
	for i, e := range entries {
		out[i] = schemas.EntryOutcome{Entry: e, Outcome: results[i]}
	}
	return out
}
