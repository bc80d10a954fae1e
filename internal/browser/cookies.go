package browser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SaveCookies writes the tab's cookies to path so the next run can skip the
// login form. Returns the number of cookies written.
func (s *Session) SaveCookies(ctx context.Context, path string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return 0, fmt.Errorf("read cookies: %w", err)
	}

	jar := make([]schemas.Cookie, 0, len(cookies))
	for _, c := range cookies {
		jar = append(jar, fromNetworkCookie(c))
	}
	if err := WriteCookieJar(path, jar); err != nil {
		return 0, err
	}
	s.logger.Debug("Cookies saved", zap.Int("count", len(jar)))
	return len(jar), nil
}

// LoadCookies installs unexpired cookies from path. A missing file is not an error.
func (s *Session) LoadCookies(ctx context.Context, path string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	jar, err := ReadCookieJar(path, time.Now())
	if err != nil || len(jar) == 0 {
		return 0, err
	}

	params := make([]*network.CookieParam, 0, len(jar))
	for _, c := range jar {
		params = append(params, toCookieParam(c))
	}
	if err := s.run(ctx, network.SetCookies(params)); err != nil {
		return 0, fmt.Errorf("install cookies: %w", err)
	}
	s.logger.Debug("Cookies restored", zap.Int("count", len(params)))
	return len(params), nil
}

// WriteCookieJar stores cookies as JSON with owner-only permissions. The file
// holds session tokens, so it is written to a temp file and renamed.
func WriteCookieJar(path string, cookies []schemas.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cookie jar directory: %w", err)
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cookie jar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace cookie jar: %w", err)
	}
	return nil
}

// ReadCookieJar loads cookies from path, dropping those expired at now.
func ReadCookieJar(path string, now time.Time) ([]schemas.Cookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie jar: %w", err)
	}

	var all []schemas.Cookie
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode cookie jar %s: %w", path, err)
	}
	live := all[:0]
	for _, c := range all {
		if !c.Expired(now) {
			live = append(live, c)
		}
	}
	return live, nil
}

// ClearCookieJar removes the jar, e.g. after the site rejects the stored session.
func ClearCookieJar(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cookie jar: %w", err)
	}
	return nil
}

func fromNetworkCookie(c *network.Cookie) schemas.Cookie {
	return schemas.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		Session:  c.Session,
		SameSite: schemas.CookieSameSite(c.SameSite),
	}
}

func toCookieParam(c schemas.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: network.CookieSameSite(c.SameSite),
	}
	if !c.Session && c.Expires > 0 {
		expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
		p.Expires = &expires
	}
	return p
}
