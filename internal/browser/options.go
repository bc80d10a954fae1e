package browser

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/config"
)

// PersonaFromConfig starts from the default persona and applies overrides.
func PersonaFromConfig(cfg config.BrowserConfig) schemas.Persona {
	p := schemas.DefaultPersona
	p.Languages = append([]string(nil), schemas.DefaultPersona.Languages...)
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
		if cfg.Locale != p.Languages[0] {
			p.Languages = append([]string{cfg.Locale}, p.Languages...)
		}
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		p.Width = int64(cfg.ViewportWidth)
		p.Height = int64(cfg.ViewportHeight)
	}
	return p
}

// launchFlags is the Chrome command line as a flag map. A false value removes
// a flag that chromedp's defaults would otherwise set.
func launchFlags(cfg config.BrowserConfig, p schemas.Persona, goos string) map[string]interface{} {
	flags := map[string]interface{}{
		// Drops the "controlled by automated software" bar and navigator.webdriver.
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
		// Native permission prompts would block the page indefinitely.
		"disable-notifications": true,
		"disable-infobars":      true,
		"disable-extensions":    true,
		"headless":              cfg.Headless,
		"hide-scrollbars":       cfg.Headless,
		"mute-audio":            true,
		"disable-gpu":           cfg.Headless,
		"lang":                  p.Locale,
		"window-size":           fmt.Sprintf("%d,%d", p.Width, p.Height),
	}

	// Containers and CI runners rarely grant the namespaces Chrome's sandbox wants.
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}

	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(strings.TrimSpace(arg), "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig, p schemas.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range launchFlags(cfg, p, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	opts = append(opts, chromedp.UserAgent(p.UserAgent))
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
