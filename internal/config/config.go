// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix viper uses for environment overrides (SALVATOR_BROWSER_HEADLESS, ...).
const EnvPrefix = "SALVATOR"

// Environment variables that carry the account credentials. They are bound
// explicitly so they work even when the key is absent from the config file.
const (
	EnvAccountIdentifier = "SALVATOR_ACCOUNT_IDENTIFIER"
	EnvAccountSecret     = "SALVATOR_ACCOUNT_SECRET"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Account  AccountConfig  `mapstructure:"account" yaml:"account"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Site     SiteConfig     `mapstructure:"site" yaml:"site"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Scrape   ScrapeConfig   `mapstructure:"scrape" yaml:"scrape"`
	Greeting GreetingConfig `mapstructure:"greeting" yaml:"greeting"`
	Humanoid HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AccountConfig carries the login of the single account the tool acts for.
// The secret is usually supplied through SALVATOR_ACCOUNT_SECRET.
type AccountConfig struct {
	Identifier string `mapstructure:"identifier" yaml:"identifier"`
	Secret     string `mapstructure:"secret" yaml:"secret"`
}

// Configured reports whether both halves of the login are present.
func (a AccountConfig) Configured() bool {
	return a.Identifier != "" && a.Secret != ""
}

// BrowserConfig controls the Chrome process and page-level timing.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	NavigationBackoff time.Duration `mapstructure:"navigation_backoff" yaml:"navigation_backoff"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	CookieJar         string        `mapstructure:"cookie_jar" yaml:"cookie_jar"`
}

// SiteConfig names the surfaces of the target site and how to find things on them.
type SiteConfig struct {
	LoginURL     string          `mapstructure:"login_url" yaml:"login_url"`
	HomeURL      string          `mapstructure:"home_url" yaml:"home_url"`
	BirthdaysURL string          `mapstructure:"birthdays_url" yaml:"birthdays_url"`
	ProfileBase  string          `mapstructure:"profile_base" yaml:"profile_base"`
	Selectors    SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
}

// SelectorsConfig lists locator candidates per role, highest priority first.
// A candidate prefixed with "xpath:" is evaluated as XPath, anything else as CSS.
type SelectorsConfig struct {
	Identifier       []string `mapstructure:"identifier" yaml:"identifier"`
	Secret           []string `mapstructure:"secret" yaml:"secret"`
	Submit           []string `mapstructure:"submit" yaml:"submit"`
	Landmark         []string `mapstructure:"landmark" yaml:"landmark"`
	ErrorBanner      []string `mapstructure:"error_banner" yaml:"error_banner"`
	Challenge        []string `mapstructure:"challenge" yaml:"challenge"`
	BirthdayList     []string `mapstructure:"birthday_list" yaml:"birthday_list"`
	BirthdayItem     string   `mapstructure:"birthday_item" yaml:"birthday_item"`
	ItemLabel        string   `mapstructure:"item_label" yaml:"item_label"`
	ItemLink         string   `mapstructure:"item_link" yaml:"item_link"`
	Composer         []string `mapstructure:"composer" yaml:"composer"`
	PostButton       []string `mapstructure:"post_button" yaml:"post_button"`
	PostConfirmation []string `mapstructure:"post_confirmation" yaml:"post_confirmation"`
}

// AuthConfig bounds the login outcome race.
type AuthConfig struct {
	DetectTimeout time.Duration `mapstructure:"detect_timeout" yaml:"detect_timeout"`
	FieldTimeout  time.Duration `mapstructure:"field_timeout" yaml:"field_timeout"`
	ReuseCookies  bool          `mapstructure:"reuse_cookies" yaml:"reuse_cookies"`
}

// ScrapeConfig bounds the listing wait and the lazy-load scroll loop.
type ScrapeConfig struct {
	RenderTimeout   time.Duration `mapstructure:"render_timeout" yaml:"render_timeout"`
	SettleWindow    time.Duration `mapstructure:"settle_window" yaml:"settle_window"`
	MaxScrollRounds int           `mapstructure:"max_scroll_rounds" yaml:"max_scroll_rounds"`
}

// GreetingConfig controls message composition and pacing between sends.
type GreetingConfig struct {
	Templates       []string      `mapstructure:"templates" yaml:"templates"`
	CourtesyDelay   time.Duration `mapstructure:"courtesy_delay" yaml:"courtesy_delay"`
	ComposerTimeout time.Duration `mapstructure:"composer_timeout" yaml:"composer_timeout"`
	VerifyTimeout   time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	DryRun          bool          `mapstructure:"dry_run" yaml:"dry_run"`
	Exclude         []string      `mapstructure:"exclude" yaml:"exclude"`
}

// HumanoidConfig tunes the keystroke cadence used when typing into the page.
type HumanoidConfig struct {
	Enabled          bool    `mapstructure:"enabled" yaml:"enabled"`
	KeyDelayMeanMs   float64 `mapstructure:"key_delay_mean_ms" yaml:"key_delay_mean_ms"`
	KeyDelayStdDevMs float64 `mapstructure:"key_delay_stddev_ms" yaml:"key_delay_stddev_ms"`
	KeyDelayMinMs    float64 `mapstructure:"key_delay_min_ms" yaml:"key_delay_min_ms"`
	PauseChance      float64 `mapstructure:"pause_chance" yaml:"pause_chance"`
	PauseMeanMs      float64 `mapstructure:"pause_mean_ms" yaml:"pause_mean_ms"`
}

// StoreConfig locates the run history database. Driver is "sqlite" (a local
// file at Path) or "postgres" (a server at DSN).
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver  string `mapstructure:"driver" yaml:"driver"`
	Path    string `mapstructure:"path" yaml:"path"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// Validate checks that the selected backend has a location.
func (s *StoreConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	switch s.Driver {
	case "sqlite":
		if s.Path == "" {
			return fmt.Errorf("path is required for the sqlite driver")
		}
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown driver %q (want sqlite or postgres)", s.Driver)
	}
	return nil
}

// MetricsConfig points at a node_exporter textfile collector target. Empty disables export.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// ScheduleConfig describes the crontab entry installed by `salvator cron install`.
type ScheduleConfig struct {
	Expression string `mapstructure:"expression" yaml:"expression"`
	Binary     string `mapstructure:"binary" yaml:"binary"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "salvator")
	v.SetDefault("logger.log_file", "~/.salvator/salvator.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "")
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.navigation_backoff", "3s")
	v.SetDefault("browser.poll_interval", "250ms")
	v.SetDefault("browser.cookie_jar", "~/.salvator/cookies.json")

	// -- Site --
	v.SetDefault("site.login_url", "https://www.facebook.com/login")
	v.SetDefault("site.home_url", "https://www.facebook.com/")
	v.SetDefault("site.birthdays_url", "https://www.facebook.com/events/birthdays/")
	v.SetDefault("site.profile_base", "https://www.facebook.com/")
	v.SetDefault("site.selectors.identifier", []string{"#email", "input[name='email']", "input[type='email']"})
	v.SetDefault("site.selectors.secret", []string{"#pass", "input[name='pass']", "input[type='password']"})
	v.SetDefault("site.selectors.submit", []string{"#loginbutton", "button[name='login']", "button[type='submit']"})
	v.SetDefault("site.selectors.landmark", []string{"[aria-label='Your profile']", "[aria-label='Account Controls and Settings']", "#userNav"})
	v.SetDefault("site.selectors.error_banner", []string{"#error_box", "div[role='alert']", "xpath://div[contains(text(),'password you')]"})
	v.SetDefault("site.selectors.challenge", []string{"#approvals_code", "input[name='approvals_code']", "form[action*='checkpoint']", "iframe[title*='captcha']"})
	v.SetDefault("site.selectors.birthday_list", []string{"#birthdays_today_card", "div[role='main'] ul", "xpath://h2[contains(.,'Today')]/following::ul[1]"})
	v.SetDefault("site.selectors.birthday_item", "li")
	v.SetDefault("site.selectors.item_label", "a[href]")
	v.SetDefault("site.selectors.item_link", "a[href]")
	v.SetDefault("site.selectors.composer", []string{"div[role='textbox'][contenteditable='true']", "textarea[name='xhpc_message']", "textarea"})
	v.SetDefault("site.selectors.post_button", []string{"div[aria-label='Post'][role='button']", "button[type='submit']"})
	v.SetDefault("site.selectors.post_confirmation", []string{"div[role='alert'][aria-live]", "xpath://span[contains(.,'Your post')]"})

	// -- Auth --
	v.SetDefault("auth.detect_timeout", "20s")
	v.SetDefault("auth.field_timeout", "15s")
	v.SetDefault("auth.reuse_cookies", true)

	// -- Scrape --
	v.SetDefault("scrape.render_timeout", "30s")
	v.SetDefault("scrape.settle_window", "2s")
	v.SetDefault("scrape.max_scroll_rounds", 20)

	// -- Greeting --
	v.SetDefault("greeting.templates", []string{
		"Happy birthday, {{.FirstName}}!",
		"Happy birthday {{.FirstName}}, have a great day!",
		"Many happy returns, {{.FirstName}}!",
	})
	v.SetDefault("greeting.courtesy_delay", "8s")
	v.SetDefault("greeting.composer_timeout", "15s")
	v.SetDefault("greeting.verify_timeout", "10s")
	v.SetDefault("greeting.dry_run", false)
	v.SetDefault("greeting.exclude", []string{})

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.key_delay_mean_ms", 95.0)
	v.SetDefault("humanoid.key_delay_stddev_ms", 30.0)
	v.SetDefault("humanoid.key_delay_min_ms", 25.0)
	v.SetDefault("humanoid.pause_chance", 0.04)
	v.SetDefault("humanoid.pause_mean_ms", 400.0)

	// -- Store --
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "~/.salvator/history.db")
	v.SetDefault("store.dsn", "")

	// -- Metrics --
	v.SetDefault("metrics.textfile_path", "")

	// -- Schedule --
	v.SetDefault("schedule.expression", "0 9 * * *")
	v.SetDefault("schedule.binary", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("account.identifier", EnvAccountIdentifier)
	_ = v.BindEnv("account.secret", EnvAccountSecret)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Logger.LogFile, &c.Browser.CookieJar, &c.Store.Path, &c.Metrics.TextfilePath, &c.Browser.ExecPath} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// Credentials are not required here; commands that need them check separately.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site configuration invalid: %w", err)
	}
	if c.Auth.DetectTimeout <= 0 {
		return fmt.Errorf("auth.detect_timeout must be a positive duration")
	}
	if c.Scrape.RenderTimeout <= 0 {
		return fmt.Errorf("scrape.render_timeout must be a positive duration")
	}
	if c.Scrape.MaxScrollRounds < 0 {
		return fmt.Errorf("scrape.max_scroll_rounds must not be negative")
	}
	if err := c.Greeting.Validate(); err != nil {
		return fmt.Errorf("greeting configuration invalid: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	if len(strings.Fields(c.Schedule.Expression)) != 5 {
		return fmt.Errorf("schedule.expression must have five cron fields, got %q", c.Schedule.Expression)
	}
	return nil
}

// Validate checks the browser timing values.
func (b *BrowserConfig) Validate() error {
	if b.LaunchTimeout <= 0 {
		return fmt.Errorf("launch_timeout must be a positive duration")
	}
	if b.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if b.NavigationBackoff < 0 {
		return fmt.Errorf("navigation_backoff must not be negative")
	}
	if b.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}

// Validate checks that every surface and every required locator role is set.
func (s *SiteConfig) Validate() error {
	for name, u := range map[string]string{
		"login_url":     s.LoginURL,
		"home_url":      s.HomeURL,
		"birthdays_url": s.BirthdaysURL,
	} {
		if u == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	sel := s.Selectors
	for name, candidates := range map[string][]string{
		"identifier":    sel.Identifier,
		"secret":        sel.Secret,
		"landmark":      sel.Landmark,
		"error_banner":  sel.ErrorBanner,
		"challenge":     sel.Challenge,
		"birthday_list": sel.BirthdayList,
		"composer":      sel.Composer,
	} {
		if len(candidates) == 0 {
			return fmt.Errorf("selectors.%s needs at least one candidate", name)
		}
	}
	if sel.BirthdayItem == "" || sel.ItemLink == "" {
		return fmt.Errorf("selectors.birthday_item and selectors.item_link are required")
	}
	return nil
}

// Validate checks the greeting settings.
func (g *GreetingConfig) Validate() error {
	if len(g.Templates) == 0 {
		return fmt.Errorf("at least one template is required")
	}
	if g.CourtesyDelay < 0 {
		return fmt.Errorf("courtesy_delay must not be negative")
	}
	if g.VerifyTimeout <= 0 {
		return fmt.Errorf("verify_timeout must be a positive duration")
	}
	return nil
}
