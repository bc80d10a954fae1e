// File: api/schemas/browser.go
package schemas

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Persona is the browser identity presented to the site for a whole session.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
	Timezone  string   `json:"timezoneId"`
	Locale    string   `json:"locale"`
}

// DefaultPersona is a common desktop Chrome on Windows.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Width:     1366,
	Height:    768,
	Locale:    "en-US",
}

type CookieSameSite string

const (
	CookieSameSiteStrict CookieSameSite = "Strict"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteNone   CookieSameSite = "None"
)

// Cookie is the persisted form of a browser cookie.
type Cookie struct {
	Name     string         `json:"name"`
	Value    string         `json:"value"`
	Domain   string         `json:"domain"`
	Path     string         `json:"path"`
	Expires  float64        `json:"expires"`
	HTTPOnly bool           `json:"httpOnly"`
	Secure   bool           `json:"secure"`
	Session  bool           `json:"session"`
	SameSite CookieSameSite `json:"sameSite,omitempty"`
}

// Expired reports whether a persistent cookie is past its expiry at now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Session && c.Expires > 0 && float64(now.Unix()) >= c.Expires
}

// -- Locators --

// SelectorKind tells the browser how to evaluate a query.
type SelectorKind string

const (
	SelectorCSS   SelectorKind = "css"
	SelectorXPath SelectorKind = "xpath"
)

const xpathPrefix = "xpath:"

// Selector is a single query.
type Selector struct {
	Kind  SelectorKind
	Query string
}

func (s Selector) String() string {
	if s.Kind == SelectorXPath {
		return xpathPrefix + s.Query
	}
	return s.Query
}

// Locator is an element-finding strategy. Candidates are tried in order and
// the first one matching anything wins.
type Locator interface {
	Candidates() []Selector
	String() string
}

// CSS returns a locator with a single CSS candidate.
func CSS(query string) Locator { return single{Selector{Kind: SelectorCSS, Query: query}} }

// XPath returns a locator with a single XPath candidate.
func XPath(query string) Locator { return single{Selector{Kind: SelectorXPath, Query: query}} }

type single struct{ sel Selector }

func (s single) Candidates() []Selector { return []Selector{s.sel} }
func (s single) String() string         { return s.sel.String() }

// Fallback chains locators by priority.
type Fallback []Locator

func (f Fallback) Candidates() []Selector {
	var out []Selector
	for _, l := range f {
		out = append(out, l.Candidates()...)
	}
	return out
}

func (f Fallback) String() string {
	parts := make([]string, 0, len(f))
	for _, l := range f {
		parts = append(parts, l.String())
	}
	return strings.Join(parts, " | ")
}

// ParseLocator reads one configured candidate. "xpath:" selects XPath,
// anything else is CSS.
func ParseLocator(raw string) Locator {
	raw = strings.TrimSpace(raw)
	if q, ok := strings.CutPrefix(raw, xpathPrefix); ok {
		return XPath(strings.TrimSpace(q))
	}
	return CSS(raw)
}

// LocatorFromSpecs builds a Fallback from configured candidates, skipping blanks.
func LocatorFromSpecs(specs []string) Locator {
	f := make(Fallback, 0, len(specs))
	for _, s := range specs {
		if strings.TrimSpace(s) == "" {
			continue
		}
		f = append(f, ParseLocator(s))
	}
	return f
}

// -- Page --

// ElementRef points at a node found by WaitFor. It is only valid until the
// next navigation.
type ElementRef struct {
	NodeID  int64
	Matched Selector
}

func (e ElementRef) String() string { return fmt.Sprintf("node %d (%s)", e.NodeID, e.Matched) }

// Page is the view of a live browser tab the automation components work against.
// Every call is bounded by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// WaitFor polls the locator's candidates in priority order until one
	// matches or timeout elapses.
	WaitFor(ctx context.Context, loc Locator, timeout time.Duration) (ElementRef, error)
	// Present checks once, without waiting.
	Present(ctx context.Context, loc Locator) (bool, error)

	ReadText(ctx context.Context, el ElementRef) (string, error)
	// ReadValue returns what is entered in a form control (its value), or
	// the rendered text of any other element.
	ReadValue(ctx context.Context, el ElementRef) (string, error)
	OuterHTML(ctx context.Context, el ElementRef) (string, error)
	Type(ctx context.Context, el ElementRef, text string) error
	Click(ctx context.Context, el ElementRef) error
	PressEnter(ctx context.Context, el ElementRef) error
	// ScrollToBottom scrolls the window to the end of the document and
	// returns the resulting document height.
	ScrollToBottom(ctx context.Context) (int64, error)
}
