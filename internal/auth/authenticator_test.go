package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testCreds = schemas.Credentials{Identifier: "jane@example.com", Secret: "s3cret-pass"}

type testFixture struct {
	page *mocks.FakePage
	auth *Authenticator
	logs *observer.ObservedLogs
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	sel := Selectors{
		Identifier:  schemas.LocatorFromSpecs([]string{"#email", "input[name='email']"}),
		Secret:      schemas.LocatorFromSpecs([]string{"#pass"}),
		Submit:      schemas.LocatorFromSpecs([]string{"#loginbutton"}),
		Landmark:    schemas.LocatorFromSpecs([]string{"#profile"}),
		ErrorBanner: schemas.LocatorFromSpecs([]string{"#error_box"}),
		Challenge:   schemas.LocatorFromSpecs([]string{"#approvals_code"}),
	}
	opts := Options{
		LoginURL:      "https://site.test/login",
		HomeURL:       "https://site.test/",
		FieldTimeout:  50 * time.Millisecond,
		DetectTimeout: 150 * time.Millisecond,
		PollInterval:  2 * time.Millisecond,
	}
	page := mocks.NewFakePage()
	page.Show("#email", "#pass", "#loginbutton")
	return &testFixture{
		page: page,
		auth: New(sel, opts, zap.New(core)),
		logs: logs,
	}
}

// onSubmit shows selector when the login button is clicked.
func (f *testFixture) onSubmit(selector string) {
	f.page.OnClick = func(sel string) error {
		if sel == "#loginbutton" {
			f.page.Show(selector)
		}
		return nil
	}
}

func TestLogin_Authenticated(t *testing.T) {
	f := newTestFixture(t)
	f.onSubmit("#profile")

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthAuthenticated, result)

	assert.Equal(t, []string{"https://site.test/login"}, f.page.Navigations)
	assert.Equal(t, []string{"jane@example.com"}, f.page.TypedInto("#email"))
	assert.Equal(t, []string{"s3cret-pass"}, f.page.TypedInto("#pass"))
	assert.Equal(t, []string{"#loginbutton"}, f.page.Clicks)
}

func TestLogin_ErrorBannerBeatsLandmark(t *testing.T) {
	f := newTestFixture(t)
	f.page.OnClick = func(string) error {
		f.page.Show("#error_box")
		f.page.ShowAfter(60*time.Millisecond, "#profile")
		return nil
	}

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthInvalidCredentials, result)
	assert.Zero(t, f.page.Reloads, "invalid credentials are never retried")
}

func TestLogin_ChallengeByMarkup(t *testing.T) {
	f := newTestFixture(t)
	f.onSubmit("#approvals_code")

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthChallengeRequired, result)
	assert.Zero(t, f.page.Reloads)
}

func TestLogin_ChallengeByURL(t *testing.T) {
	f := newTestFixture(t)
	f.page.OnClick = func(string) error {
		f.page.SetURL("https://site.test/checkpoint/?next=home")
		return nil
	}

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthChallengeRequired, result)
}

func TestLogin_UnknownFailureRetriedOnceAfterReload(t *testing.T) {
	f := newTestFixture(t)
	// Nothing ever resolves.

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthUnknownFailure, result)
	assert.Equal(t, 1, f.page.Reloads, "exactly one reload-and-retry")
	assert.Len(t, f.page.TypedInto("#email"), 2)
	assert.Equal(t, 1, f.logs.FilterMessage("Login outcome unclear, reloading and trying once more").Len())
}

func TestLogin_RetrySucceeds(t *testing.T) {
	f := newTestFixture(t)
	f.page.OnReload = func() error {
		f.onSubmit("#profile")
		return nil
	}

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthAuthenticated, result)
	assert.Equal(t, 1, f.page.Reloads)
}

func TestLogin_MissingSecretFieldIsRetriedAfterReload(t *testing.T) {
	f := newTestFixture(t)
	f.page.Hide("#pass")
	f.page.OnReload = func() error {
		f.page.Show("#pass")
		f.onSubmit("#profile")
		return nil
	}

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthAuthenticated, result)
	assert.Equal(t, 1, f.page.Reloads)
	assert.Equal(t, []string{"s3cret-pass"}, f.page.TypedInto("#pass"), "the secret is typed only once the field exists")
	assert.Equal(t, 1, f.logs.FilterMessage("Secret field did not appear after the identifier").Len())
}

func TestLogin_MissingSecretFieldEndsUnknown(t *testing.T) {
	f := newTestFixture(t)
	f.page.Hide("#pass")

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthUnknownFailure, result)
	assert.Equal(t, 1, f.page.Reloads, "one reload-and-retry, then give up")
	assert.Empty(t, f.page.TypedInto("#pass"))
}

func TestLogin_EnterFallbackWhenNoSubmitControl(t *testing.T) {
	f := newTestFixture(t)
	f.page.Hide("#loginbutton")
	f.page.OnEnter = func(sel string) error {
		f.page.Show("#profile")
		return nil
	}

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthAuthenticated, result)
	assert.Equal(t, []string{"#pass"}, f.page.Enters)
	assert.Empty(t, f.page.Clicks)
}

func TestLogin_FallbackSelector(t *testing.T) {
	f := newTestFixture(t)
	f.page.Hide("#email")
	f.page.Show("input[name='email']")
	f.onSubmit("#profile")

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthAuthenticated, result)
	assert.Equal(t, []string{"jane@example.com"}, f.page.TypedInto("input[name='email']"))
}

func TestLogin_NoFormButAlreadyLoggedIn(t *testing.T) {
	f := newTestFixture(t)
	f.page.Hide("#email", "#pass", "#loginbutton")
	f.page.Show("#profile")

	result, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)
	assert.Equal(t, schemas.AuthAuthenticated, result)
	assert.Empty(t, f.page.Typed)
}

func TestLogin_NavigationErrorPropagates(t *testing.T) {
	f := newTestFixture(t)
	boom := errors.New("unreachable")
	f.page.OnNavigate = func(string) error { return boom }

	_, err := f.auth.Login(context.Background(), f.page, testCreds)
	assert.ErrorIs(t, err, boom)
}

func TestLogin_MissingCredentials(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.auth.Login(context.Background(), f.page, schemas.Credentials{Identifier: "x"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Empty(t, f.page.Navigations, "the page is not touched")
}

func TestLogin_NeverLogsSecret(t *testing.T) {
	f := newTestFixture(t)
	f.onSubmit("#profile")

	_, err := f.auth.Login(context.Background(), f.page, testCreds)
	require.NoError(t, err)

	for _, entry := range f.logs.All() {
		assert.NotContains(t, entry.Message, testCreds.Secret)
		for _, v := range entry.ContextMap() {
			assert.NotContains(t, fmtValue(v), testCreds.Secret)
			assert.NotContains(t, fmtValue(v), testCreds.Identifier)
		}
	}
}

func TestResume(t *testing.T) {
	t.Run("landmark present", func(t *testing.T) {
		f := newTestFixture(t)
		f.page.Hide("#email")
		f.page.Show("#profile")

		ok, err := f.auth.Resume(context.Background(), f.page)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"https://site.test/"}, f.page.Navigations)
	})

	t.Run("login form shown", func(t *testing.T) {
		f := newTestFixture(t)

		ok, err := f.auth.Resume(context.Background(), f.page)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, f.page.Typed)
	})
}

func TestError(t *testing.T) {
	err := error(&Error{Result: schemas.AuthChallengeRequired})
	res, ok := ResultOf(err)
	require.True(t, ok)
	assert.Equal(t, schemas.AuthChallengeRequired, res)
	assert.Contains(t, err.Error(), "verification")

	_, ok = ResultOf(errors.New("other"))
	assert.False(t, ok)
}

func TestSelectorsFromConfig(t *testing.T) {
	sel := SelectorsFromConfig(defaultConfig(t).Site.Selectors)
	assert.NotEmpty(t, sel.Identifier.Candidates())
	assert.NotEmpty(t, sel.Landmark.Candidates())
}
