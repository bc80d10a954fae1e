package browser

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/salvator/api/schemas"
)

func TestCookieJar_RoundTripDropsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	now := time.Unix(1_700_000_000, 0)

	jar := []schemas.Cookie{
		{Name: "c_user", Value: "1", Domain: ".example.com", Path: "/", Expires: float64(now.Add(time.Hour).Unix())},
		{Name: "stale", Value: "2", Domain: ".example.com", Path: "/", Expires: float64(now.Add(-time.Hour).Unix())},
		{Name: "sess", Value: "3", Domain: ".example.com", Path: "/", Session: true},
	}
	require.NoError(t, WriteCookieJar(path, jar))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	got, err := ReadCookieJar(path, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c_user", got[0].Name)
	assert.Equal(t, "sess", got[1].Name)
}

func TestReadCookieJar_MissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	got, err := ReadCookieJar(filepath.Join(dir, "absent.json"), time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = ReadCookieJar(bad, time.Now())
	assert.Error(t, err)
}

func TestClearCookieJar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, WriteCookieJar(path, nil))
	require.NoError(t, ClearCookieJar(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, ClearCookieJar(path), "clearing twice is fine")
}

func TestCookieConversion(t *testing.T) {
	nc := &network.Cookie{
		Name: "xs", Value: "v", Domain: ".example.com", Path: "/",
		Expires: 1_800_000_000, HTTPOnly: true, Secure: true,
		SameSite: network.CookieSameSiteNone,
	}
	c := fromNetworkCookie(nc)
	assert.Equal(t, schemas.CookieSameSiteNone, c.SameSite)

	p := toCookieParam(c)
	assert.Equal(t, "xs", p.Name)
	assert.True(t, p.HTTPOnly)
	require.NotNil(t, p.Expires)
	assert.Equal(t, int64(1_800_000_000), p.Expires.Time().Unix())

	c.Session = true
	assert.Nil(t, toCookieParam(c).Expires, "session cookies carry no expiry")
}
