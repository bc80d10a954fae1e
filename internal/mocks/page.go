// File: internal/mocks/page.go
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/browser"
)

// FakePage is a scriptable schemas.Page. Elements are keyed by selector
// string (as written in config, "xpath:" prefix included) and are either
// visible or not. Hooks let a test change the page in response to actions.
type FakePage struct {
	mu sync.Mutex

	url     string
	visible map[string]bool
	ids     map[string]int64
	bySel   map[int64]string
	text    map[string]string
	html    map[string]string
	// controls are form controls: their content is a value, invisible to ReadText.
	controls map[string]bool

	// Hooks run without the lock held, so they may call Show/Hide/SetText.
	OnNavigate func(url string) error
	OnReload   func() error
	OnClick    func(selector string) error
	OnType     func(selector, text string) error
	OnEnter    func(selector string) error
	OnScroll   func(round int)

	PollInterval time.Duration

	Navigations []string
	Reloads     int
	Clicks      []string
	Typed       []TypedText
	Enters      []string
	Scrolls     int
}

// TypedText records one Type call.
type TypedText struct {
	Selector string
	Text     string
}

var _ schemas.Page = (*FakePage)(nil)

func NewFakePage() *FakePage {
	return &FakePage{
		visible:      make(map[string]bool),
		ids:          make(map[string]int64),
		bySel:        make(map[int64]string),
		text:         make(map[string]string),
		html:         make(map[string]string),
		controls:     make(map[string]bool),
		PollInterval: time.Millisecond,
	}
}

func (f *FakePage) idFor(sel string) int64 {
	if id, ok := f.ids[sel]; ok {
		return id
	}
	id := int64(len(f.ids) + 1)
	f.ids[sel] = id
	f.bySel[id] = sel
	return id
}

// Show makes selectors match.
func (f *FakePage) Show(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		f.visible[s] = true
		f.idFor(s)
	}
}

// Hide makes selectors stop matching.
func (f *FakePage) Hide(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		delete(f.visible, s)
	}
}

// ShowAfter shows selector once d has passed.
func (f *FakePage) ShowAfter(d time.Duration, selector string) {
	time.AfterFunc(d, func() { f.Show(selector) })
}

// MarkFormControl makes selector behave like a textarea: typed and set text
// is reported by ReadValue only.
func (f *FakePage) MarkFormControl(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		f.controls[s] = true
	}
}

// SetText sets the content of selector.
func (f *FakePage) SetText(selector, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text[selector] = text
}

// SetHTML sets the markup OuterHTML returns for selector.
func (f *FakePage) SetHTML(selector, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.html[selector] = html
}

// SetURL sets what CurrentURL reports.
func (f *FakePage) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

// TypedInto returns everything typed into selector, in order.
func (f *FakePage) TypedInto(selector string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.Typed {
		if t.Selector == selector {
			out = append(out, t.Text)
		}
	}
	return out
}

func (f *FakePage) selectorOf(el schemas.ElementRef) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bySel[el.NodeID]
}

func (f *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.Navigations = append(f.Navigations, url)
	f.url = url
	hook := f.OnNavigate
	f.mu.Unlock()
	if hook != nil {
		return hook(url)
	}
	return nil
}

func (f *FakePage) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.Reloads++
	hook := f.OnReload
	f.mu.Unlock()
	if hook != nil {
		return hook()
	}
	return nil
}

func (f *FakePage) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, ctx.Err()
}

func (f *FakePage) find(loc schemas.Locator) (schemas.ElementRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sel := range loc.Candidates() {
		key := sel.String()
		if f.visible[key] {
			return schemas.ElementRef{NodeID: f.idFor(key), Matched: sel}, true
		}
	}
	return schemas.ElementRef{}, false
}

func (f *FakePage) WaitFor(ctx context.Context, loc schemas.Locator, timeout time.Duration) (schemas.ElementRef, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(f.PollInterval)
	defer ticker.Stop()
	for {
		if ref, ok := f.find(loc); ok {
			return ref, nil
		}
		select {
		case <-ctx.Done():
			return schemas.ElementRef{}, ctx.Err()
		case <-deadline.C:
			return schemas.ElementRef{}, &browser.TimeoutError{What: loc.String(), After: timeout}
		case <-ticker.C:
		}
	}
}

func (f *FakePage) Present(ctx context.Context, loc schemas.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := f.find(loc)
	return ok, nil
}

func (f *FakePage) ReadText(ctx context.Context, el schemas.ElementRef) (string, error) {
	sel := f.selectorOf(el)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.controls[sel] {
		return "", ctx.Err()
	}
	return f.text[sel], ctx.Err()
}

func (f *FakePage) ReadValue(ctx context.Context, el schemas.ElementRef) (string, error) {
	sel := f.selectorOf(el)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text[sel], ctx.Err()
}

func (f *FakePage) OuterHTML(ctx context.Context, el schemas.ElementRef) (string, error) {
	sel := f.selectorOf(el)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html[sel], ctx.Err()
}

func (f *FakePage) Type(ctx context.Context, el schemas.ElementRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel := f.selectorOf(el)
	f.mu.Lock()
	f.Typed = append(f.Typed, TypedText{Selector: sel, Text: text})
	f.text[sel] += text
	hook := f.OnType
	f.mu.Unlock()
	if hook != nil {
		return hook(sel, text)
	}
	return nil
}

func (f *FakePage) Click(ctx context.Context, el schemas.ElementRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel := f.selectorOf(el)
	f.mu.Lock()
	f.Clicks = append(f.Clicks, sel)
	hook := f.OnClick
	f.mu.Unlock()
	if hook != nil {
		return hook(sel)
	}
	return nil
}

func (f *FakePage) PressEnter(ctx context.Context, el schemas.ElementRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sel := f.selectorOf(el)
	f.mu.Lock()
	f.Enters = append(f.Enters, sel)
	hook := f.OnEnter
	f.mu.Unlock()
	if hook != nil {
		return hook(sel)
	}
	return nil
}

func (f *FakePage) ScrollToBottom(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	f.Scrolls++
	round := f.Scrolls
	hook := f.OnScroll
	f.mu.Unlock()
	if hook != nil {
		hook(round)
	}
	return int64(round) * 1000, nil
}
