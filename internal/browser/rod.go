package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodDriver implements Driver on go-rod / Chromium DevTools protocol.
type RodDriver struct{}

// NewRodDriver returns the default production driver.
func NewRodDriver() *RodDriver { return &RodDriver{} }

// Launch starts a Chromium process and restores the cookie seed into it.
func (*RodDriver) Launch(ctx context.Context, headless bool, seed []byte) (Browser, error) {
	l := launcher.New().Headless(headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	if len(seed) > 0 {
		var cookies []*proto.NetworkCookie
		if err := json.Unmarshal(seed, &cookies); err != nil {
			_ = b.Close()
			l.Kill()
			return nil, fmt.Errorf("decode session seed: %w", err)
		}
		if err := b.SetCookies(proto.CookiesToParams(cookies)); err != nil {
			_ = b.Close()
			l.Kill()
			return nil, fmt.Errorf("restore session cookies: %w", err)
		}
	}

	return &rodBrowser{browser: b, launcher: l}, nil
}

type rodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (b *rodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &rodPage{page: page}, nil
}

func (b *rodBrowser) Cookies(ctx context.Context) ([]byte, error) {
	cookies, err := b.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return json.Marshal(cookies)
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return page.WaitLoad()
}

func (p *rodPage) Reload(ctx context.Context) error {
	page := p.page.Context(ctx)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return page.WaitLoad()
}

func (p *rodPage) WaitElement(ctx context.Context, selector string, timeout time.Duration) error {
	if _, err := p.page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (p *rodPage) Eval(ctx context.Context, js string) error {
	if _, err := p.page.Context(ctx).Eval(js); err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	return nil
}

func (p *rodPage) Close() error { return p.page.Close() }

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) { return e.el.Text() }
func (e *rodElement) HTML() (string, error) { return e.el.HTML() }

func (e *rodElement) Attribute(name string) (string, error) {
	attr, err := e.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if attr == nil {
		return "", nil
	}
	return *attr, nil
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Visible() (bool, error) { return e.el.Visible() }

func (e *rodElement) Elements(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}
