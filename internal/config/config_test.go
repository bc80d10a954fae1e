// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "salvator", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 8*time.Second, cfg.Greeting.CourtesyDelay)
	assert.Equal(t, 20*time.Second, cfg.Auth.DetectTimeout)
	assert.Equal(t, "#email", cfg.Site.Selectors.Identifier[0])
	assert.Len(t, cfg.Greeting.Templates, 3)
	assert.False(t, cfg.Account.Configured(), "no credentials are baked into defaults")
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate())

		badDetect := *cfg
		badDetect.Auth.DetectTimeout = 0
		err := badDetect.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth.detect_timeout must be a positive duration")

		badCron := *cfg
		badCron.Schedule.Expression = "0 9 * *"
		err = badCron.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "five cron fields")

		badStore := *cfg
		badStore.Store.Path = ""
		assert.Error(t, badStore.Validate())
		badStore.Store.Enabled = false
		assert.NoError(t, badStore.Validate())
	})

	t.Run("Store Validation", func(t *testing.T) {
		st := NewDefaultConfig().Store
		require.NoError(t, st.Validate())

		pg := st
		pg.Driver = "postgres"
		err := pg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dsn is required")
		pg.DSN = "postgres://salvator@localhost/salvator"
		assert.NoError(t, pg.Validate())

		unknown := st
		unknown.Driver = "mysql"
		assert.ErrorContains(t, unknown.Validate(), "unknown driver")
	})

	t.Run("Browser Validation", func(t *testing.T) {
		b := NewDefaultConfig().Browser
		require.NoError(t, b.Validate())

		b.NavigationTimeout = 0
		err := b.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "navigation_timeout")
	})

	t.Run("Site Validation", func(t *testing.T) {
		s := NewDefaultConfig().Site
		require.NoError(t, s.Validate())

		noLanding := s
		noLanding.Selectors.Landmark = nil
		err := noLanding.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "selectors.landmark")

		noURL := s
		noURL.BirthdaysURL = ""
		err = noURL.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "birthdays_url")
	})

	t.Run("Greeting Validation", func(t *testing.T) {
		g := NewDefaultConfig().Greeting
		require.NoError(t, g.Validate())

		g.Templates = nil
		assert.Error(t, g.Validate())
	})
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
browser:
  headless: false
  navigation_timeout: 10s
greeting:
  courtesy_delay: 1500ms
  exclude:
    - "jane.doe"
site:
  selectors:
    composer:
      - "textarea.custom"
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.Greeting.CourtesyDelay)
	assert.Equal(t, []string{"jane.doe"}, cfg.Greeting.Exclude)
	assert.Equal(t, []string{"textarea.custom"}, cfg.Site.Selectors.Composer)
	// Untouched roles keep their defaults.
	assert.Equal(t, "#pass", cfg.Site.Selectors.Secret[0])
}

func TestNewConfigFromViper_CredentialsFromEnv(t *testing.T) {
	t.Setenv(EnvAccountIdentifier, "someone@example.com")
	t.Setenv(EnvAccountSecret, "hunter2")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "someone@example.com", cfg.Account.Identifier)
	assert.Equal(t, "hunter2", cfg.Account.Secret)
	assert.True(t, cfg.Account.Configured())
}

func TestNewConfigFromViper_ExpandsHomePaths(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".salvator", "history.db"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(home, ".salvator", "cookies.json"), cfg.Browser.CookieJar)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("greeting.verify_timeout", "0s")

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
