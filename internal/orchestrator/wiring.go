package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/internal/auth"
	"github.com/xkilldash9x/salvator/internal/birthdays"
	"github.com/xkilldash9x/salvator/internal/browser"
	"github.com/xkilldash9x/salvator/internal/browser/humanoid"
	"github.com/xkilldash9x/salvator/internal/config"
	"github.com/xkilldash9x/salvator/internal/greeting"
)

// ChromeOpener launches a real Chrome session with a freshly seeded typing cadence.
func ChromeOpener(logger *zap.Logger) SessionOpener {
	return func(ctx context.Context, cfg *config.Config) (Session, error) {
		cadence := humanoid.New(humanoid.FromConfig(cfg.Humanoid), time.Now().UnixNano())
		sess, err := browser.Open(ctx, cfg.Browser, cadence, logger)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

// DefaultComponents builds the production workers. A nil ledger disables the
// already-greeted check.
func DefaultComponents(logger *zap.Logger, ledger greeting.Ledger) ComponentFactory {
	return func(cfg *config.Config) (Components, error) {
		scraper, err := birthdays.NewFromConfig(cfg, logger)
		if err != nil {
			return Components{}, err
		}
		var opts []greeting.Option
		if ledger != nil {
			opts = append(opts, greeting.WithLedger(ledger))
		}
		dispatcher, err := greeting.NewFromConfig(cfg, logger, opts...)
		if err != nil {
			return Components{}, err
		}
		return Components{
			Auth:       auth.NewFromConfig(cfg, logger),
			Scraper:    scraper,
			Dispatcher: dispatcher,
		}, nil
	}
}
