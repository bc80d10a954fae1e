package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"github.com/xkilldash9x/salvator/internal/config"
)

// RunConfig is what a caller may change for a single run on top of the
// loaded configuration. Nothing here outlives the run.
type RunConfig struct {
	CourtesyDelay time.Duration
	Headless      bool
	DryRun        bool
	// SelectorOverrides replaces the candidate list of a selector role,
	// keyed by its config name ("composer", "birthday_list", ...).
	SelectorOverrides map[string][]string
}

// RunConfigFromConfig starts a RunConfig from the loaded settings.
func RunConfigFromConfig(cfg *config.Config) RunConfig {
	return RunConfig{
		CourtesyDelay: cfg.Greeting.CourtesyDelay,
		Headless:      cfg.Browser.Headless,
		DryRun:        cfg.Greeting.DryRun,
	}
}

// apply returns a copy of base with rc layered on top. base is not modified.
func (rc RunConfig) apply(base *config.Config) (*config.Config, error) {
	cfg := *base
	cfg.Browser.Args = append([]string(nil), base.Browser.Args...)
	cfg.Greeting.CourtesyDelay = rc.CourtesyDelay
	cfg.Browser.Headless = rc.Headless
	cfg.Greeting.DryRun = rc.DryRun

	keys := make([]string, 0, len(rc.SelectorOverrides))
	for k := range rc.SelectorOverrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, role := range keys {
		if err := overrideSelector(&cfg.Site.Selectors, role, rc.SelectorOverrides[role]); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideSelector(sel *config.SelectorsConfig, role string, candidates []string) error {
	if len(candidates) == 0 {
		return fmt.Errorf("selector override %q has no candidates", role)
	}
	list := append([]string(nil), candidates...)
	switch role {
	case "identifier":
		sel.Identifier = list
	case "secret":
		sel.Secret = list
	case "submit":
		sel.Submit = list
	case "landmark":
		sel.Landmark = list
	case "error_banner":
		sel.ErrorBanner = list
	case "challenge":
		sel.Challenge = list
	case "birthday_list":
		sel.BirthdayList = list
	case "composer":
		sel.Composer = list
	case "post_button":
		sel.PostButton = list
	case "post_confirmation":
		sel.PostConfirmation = list
	case "birthday_item":
		sel.BirthdayItem = list[0]
	case "item_label":
		sel.ItemLabel = list[0]
	case "item_link":
		sel.ItemLink = list[0]
	default:
		return fmt.Errorf("unknown selector role %q", role)
	}
	return nil
}
