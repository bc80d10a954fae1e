// Package birthdays reads today's birthday listing into BirthdayEntry values.
package birthdays

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/browser"
	"github.com/xkilldash9x/salvator/internal/config"
	"github.com/xkilldash9x/salvator/internal/detect"
)

// Selectors locate the listing. List is resolved in the live page; Item,
// Label and Link are CSS applied to the captured container markup.
type Selectors struct {
	List  schemas.Locator
	Item  string
	Label string
	Link  string
}

// SelectorsFromConfig builds the listing selectors from config.
func SelectorsFromConfig(sel config.SelectorsConfig) Selectors {
	return Selectors{
		List:  schemas.LocatorFromSpecs(sel.BirthdayList),
		Item:  sel.BirthdayItem,
		Label: sel.ItemLabel,
		Link:  sel.ItemLink,
	}
}

// Options bounds the scrape.
type Options struct {
	URL             string
	ProfileBase     string
	RenderTimeout   time.Duration
	SettleWindow    time.Duration
	MaxScrollRounds int
	PollInterval    time.Duration
}

// Scraper extracts birthday entries from the listing surface.
type Scraper struct {
	sel    Selectors
	opts   Options
	base   *url.URL
	logger *zap.Logger
}

// New creates a Scraper. ProfileBase must parse as an absolute URL when set.
func New(sel Selectors, opts Options, logger *zap.Logger) (*Scraper, error) {
	s := &Scraper{sel: sel, opts: opts, logger: logger.Named("birthdays")}
	base := opts.ProfileBase
	if base == "" {
		base = opts.URL
	}
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("birthdays: profile base %q is not an absolute URL", base)
	}
	s.base = u
	return s, nil
}

// NewFromConfig wires a Scraper from the application config.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Scraper, error) {
	return New(SelectorsFromConfig(cfg.Site.Selectors), Options{
		URL:             cfg.Site.BirthdaysURL,
		ProfileBase:     cfg.Site.ProfileBase,
		RenderTimeout:   cfg.Scrape.RenderTimeout,
		SettleWindow:    cfg.Scrape.SettleWindow,
		MaxScrollRounds: cfg.Scrape.MaxScrollRounds,
		PollInterval:    cfg.Browser.PollInterval,
	}, logger)
}

// Scrape opens the listing, waits for its container, scrolls until no new
// items arrive within the settle window, and parses what is there. Entries
// keep page order and are unique by profile reference.
func (s *Scraper) Scrape(ctx context.Context, page schemas.Page) ([]schemas.BirthdayEntry, error) {
	if err := page.Navigate(ctx, s.opts.URL); err != nil {
		return nil, err
	}

	if _, err := page.WaitFor(ctx, s.sel.List, s.opts.RenderTimeout); err != nil {
		if browser.IsTimeout(err) {
			return nil, &ScrapeError{URL: s.opts.URL, Reason: "birthday list never rendered", Err: err}
		}
		return nil, err
	}

	markup, err := s.settle(ctx, page)
	if err != nil {
		return nil, err
	}

	entries, err := s.Parse(markup)
	if err != nil {
		return nil, &ScrapeError{URL: s.opts.URL, Reason: "unreadable listing markup", Err: err}
	}
	s.logger.Info("Scraped birthday listing", zap.Int("entries", len(entries)))
	return entries, nil
}

// settle returns the container markup once scrolling stops producing items.
func (s *Scraper) settle(ctx context.Context, page schemas.Page) (string, error) {
	markup, err := s.readList(ctx, page)
	if err != nil {
		return "", &ScrapeError{URL: s.opts.URL, Reason: "birthday list vanished", Err: err}
	}
	count := s.countItems(markup)

	for round := 1; round <= s.opts.MaxScrollRounds; round++ {
		if _, err := page.ScrollToBottom(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			s.logger.Debug("Scroll failed, keeping current listing", zap.Error(err))
			break
		}

		grew, err := detect.Until(ctx, s.opts.SettleWindow, s.opts.PollInterval, func(ctx context.Context) (bool, error) {
			next, err := s.readList(ctx, page)
			if err != nil {
				return false, err
			}
			if n := s.countItems(next); n > count {
				markup, count = next, n
				return true, nil
			}
			return false, nil
		})
		if err != nil {
			return "", err
		}
		if !grew {
			s.logger.Debug("Listing settled", zap.Int("rounds", round), zap.Int("items", count))
			return markup, nil
		}
	}
	if s.opts.MaxScrollRounds > 0 {
		s.logger.Warn("Scroll limit reached before listing settled",
			zap.Int("max_rounds", s.opts.MaxScrollRounds), zap.Int("items", count))
	}
	return markup, nil
}

// readList re-resolves the container each time since lazy loading may
// replace the node.
func (s *Scraper) readList(ctx context.Context, page schemas.Page) (string, error) {
	el, err := page.WaitFor(ctx, s.sel.List, s.opts.PollInterval)
	if err != nil {
		return "", err
	}
	return page.OuterHTML(ctx, el)
}

func (s *Scraper) countItems(markup string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return 0
	}
	return doc.Find(s.sel.Item).Length()
}

// Parse extracts entries from listing markup. Items without a usable profile
// link are dropped and logged.
func (s *Scraper) Parse(markup string) ([]schemas.BirthdayEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}

	var (
		entries []schemas.BirthdayEntry
		seen    = make(map[string]struct{})
	)
	doc.Find(s.sel.Item).Each(func(i int, item *goquery.Selection) {
		label := s.label(item)
		href, _ := item.Find(s.sel.Link).First().Attr("href")
		ref := s.ProfileRef(href)
		if ref == "" {
			s.logger.Warn("Dropping birthday item without a profile link",
				zap.Int("index", i), zap.String("raw_label", label))
			return
		}
		if _, dup := seen[ref]; dup {
			s.logger.Debug("Skipping repeated birthday item", zap.String("profile", ref))
			return
		}
		seen[ref] = struct{}{}
		entries = append(entries, schemas.BirthdayEntry{
			DisplayName: Normalize(label),
			ProfileRef:  ref,
			RawLabel:    label,
		})
	})
	return entries, nil
}

func (s *Scraper) label(item *goquery.Selection) string {
	if s.sel.Label != "" {
		if text := strings.TrimSpace(item.Find(s.sel.Label).First().Text()); text != "" {
			return text
		}
	}
	return strings.TrimSpace(item.Text())
}

// ProfileRef turns an href into an absolute profile URL, or "" when the href
// cannot point at a profile. Tracking parameters are removed; numeric profile
// ids keep their id parameter.
func (s *Scraper) ProfileRef(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u = s.base.ResolveReference(u)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Path == "" || u.Path == "/" {
		return ""
	}

	id := u.Query().Get("id")
	u.RawQuery = ""
	u.Fragment = ""
	if id != "" {
		u.RawQuery = url.Values{"id": {id}}.Encode()
	}
	return u.String()
}
