package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/browser/humanoid"
)

// scrollScript scrolls the window to the end and reports the new height.
const scrollScript = `window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`

func nodeIDs(el schemas.ElementRef) []cdp.NodeID {
	return []cdp.NodeID{cdp.NodeID(el.NodeID)}
}

// query runs one selector without waiting for matches.
func (s *Session) query(ctx context.Context, sel schemas.Selector) ([]*cdp.Node, error) {
	by := chromedp.ByQueryAll
	if sel.Kind == schemas.SelectorXPath {
		by = chromedp.BySearch
	}
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel.Query, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	return nodes, nil
}

// find returns the first node of the highest-priority candidate that matches.
func (s *Session) find(ctx context.Context, loc schemas.Locator) (schemas.ElementRef, bool, error) {
	var lastErr error
	for _, sel := range loc.Candidates() {
		nodes, err := s.query(ctx, sel)
		if err != nil {
			lastErr = err
			continue
		}
		if len(nodes) > 0 {
			return schemas.ElementRef{NodeID: int64(nodes[0].NodeID), Matched: sel}, true, nil
		}
	}
	return schemas.ElementRef{}, false, lastErr
}

// WaitFor polls loc until a candidate matches or timeout elapses.
func (s *Session) WaitFor(ctx context.Context, loc schemas.Locator, timeout time.Duration) (schemas.ElementRef, error) {
	if err := s.checkOpen(); err != nil {
		return schemas.ElementRef{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ref, ok, err := s.find(waitCtx, loc)
		if ok {
			s.logger.Debug("Element found", zap.Stringer("locator", loc), zap.Stringer("matched", ref.Matched))
			return ref, nil
		}
		if err != nil && waitCtx.Err() == nil {
			s.logger.Debug("Locator query failed, polling again", zap.Stringer("locator", loc), zap.Error(err))
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return schemas.ElementRef{}, ctx.Err()
			}
			return schemas.ElementRef{}, &TimeoutError{What: loc.String(), After: timeout}
		case <-ticker.C:
		}
	}
}

// Present checks every candidate once.
func (s *Session) Present(ctx context.Context, loc schemas.Locator) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	_, ok, err := s.find(ctx, loc)
	if ok {
		return true, nil
	}
	return false, err
}

// ReadText returns the element's rendered text, trimmed.
func (s *Session) ReadText(ctx context.Context, el schemas.ElementRef) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	var text string
	if err := s.run(ctx, chromedp.Text(nodeIDs(el), &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read text of %s: %w", el, err)
	}
	return strings.TrimSpace(text), nil
}

// ReadValue returns the element's entered content, trimmed. Textareas and
// inputs keep typed text in value, where ReadText does not see it.
func (s *Session) ReadValue(ctx context.Context, el schemas.ElementRef) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(nodeIDs(el), &nodes, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("resolve %s: %w", el, err)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("resolve %s: node is gone", el)
	}

	var value string
	read := chromedp.Text(nodeIDs(el), &value, chromedp.ByNodeID)
	if isFormControl(nodes[0].NodeName) {
		read = chromedp.Value(nodeIDs(el), &value, chromedp.ByNodeID)
	}
	if err := s.run(ctx, read); err != nil {
		return "", fmt.Errorf("read value of %s: %w", el, err)
	}
	return strings.TrimSpace(value), nil
}

func isFormControl(nodeName string) bool {
	switch strings.ToUpper(nodeName) {
	case "TEXTAREA", "INPUT", "SELECT":
		return true
	}
	return false
}

// OuterHTML returns the element's markup.
func (s *Session) OuterHTML(ctx context.Context, el schemas.ElementRef) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	var html string
	if err := s.run(ctx, chromedp.OuterHTML(nodeIDs(el), &html, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read html of %s: %w", el, err)
	}
	return html, nil
}

// Type focuses el and sends text one key at a time with human pacing.
// The text itself is never logged.
func (s *Session) Type(ctx context.Context, el schemas.ElementRef, text string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.Focus(nodeIDs(el), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("focus %s: %w", el, err)
	}

	if !s.cadence.Enabled() {
		if err := s.run(ctx, chromedp.KeyEvent(text)); err != nil {
			return fmt.Errorf("type into %s: %w", el, err)
		}
		return nil
	}

	delays := s.cadence.Plan(text)
	for i, r := range []rune(text) {
		if err := humanoid.Sleep(ctx, delays[i]); err != nil {
			return err
		}
		if err := s.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("type into %s: %w", el, err)
		}
	}
	return nil
}

// Click clicks the element once it is visible.
func (s *Session) Click(ctx context.Context, el schemas.ElementRef) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.Click(nodeIDs(el), chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("click %s: %w", el, err)
	}
	return nil
}

// PressEnter focuses el and sends Enter.
func (s *Session) PressEnter(ctx context.Context, el schemas.ElementRef) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.run(ctx,
		chromedp.Focus(nodeIDs(el), chromedp.ByNodeID),
		chromedp.KeyEvent(kb.Enter),
	)
	if err != nil {
		return fmt.Errorf("press enter on %s: %w", el, err)
	}
	return nil
}

// ScrollToBottom scrolls the window to the end of the document.
func (s *Session) ScrollToBottom(ctx context.Context) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var height int64
	if err := s.run(ctx, chromedp.Evaluate(scrollScript, &height)); err != nil {
		return 0, fmt.Errorf("scroll: %w", err)
	}
	return height, nil
}
