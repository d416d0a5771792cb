package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// Strategy selects how a Locator's selector is interpreted.
type Strategy string

const (
	ByID    Strategy = "id"
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
)

// Locator identifies a page element.
type Locator struct {
	By       Strategy `yaml:"by"`
	Selector string   `yaml:"selector"`
}

func (l Locator) String() string {
	return fmt.Sprintf("(%s, %q)", l.By, l.Selector)
}

func (l Locator) validate() error {
	if l.Selector == "" {
		return errors.New("selector is empty")
	}
	switch l.By {
	case ByID, ByCSS, ByXPath:
		return nil
	default:
		return fmt.Errorf("unknown strategy %q", l.By)
	}
}

// Cookie is a browser cookie as stored in a session snapshot. Expiry is
// left loosely typed: snapshots written by other tools may carry it as a
// float, an integer or a numeric string.
type Cookie struct {
	Name     string      `yaml:"name"`
	Value    string      `yaml:"value"`
	Domain   string      `yaml:"domain,omitempty"`
	Path     string      `yaml:"path,omitempty"`
	Secure   bool        `yaml:"secure,omitempty"`
	HTTPOnly bool        `yaml:"http_only,omitempty"`
	SameSite string      `yaml:"same_site,omitempty"`
	Expiry   interface{} `yaml:"expiry,omitempty"`
}

// Element is a located page element.
type Element interface {
	Text() (string, error)
	Click() error
}

// Driver is everything the workflow needs from a browser session.
type Driver interface {
	Navigate(url string) error
	CurrentURL() (string, error)
	Reload() error
	Cookies() ([]Cookie, error)
	SetCookies(cookies []Cookie) error
	// Eval runs js, a function expression, in the page with args.
	Eval(js string, args ...interface{}) (gson.JSON, error)
	// WaitElement blocks until loc matches an element or timeout elapses,
	// in which case the returned error wraps context.DeadlineExceeded.
	WaitElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	Close() error
}

type rodDriver struct {
	config   *Config
	logger   *slog.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// LaunchBrowser starts Chrome with the configured profile and opens a single
// page that every later call drives.
func LaunchBrowser(config *Config, logger *slog.Logger) (Driver, error) {
	fmt.Println(T("browser_launching"))

	// Leakless deadlocks on Windows: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	d := &rodDriver{config: config, logger: logger}
	d.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(config.Browser.Headless).
		Set("disable-blink-features", "AutomationControlled")

	if pid, ok := profileOwner(context.Background(), config.Browser.ProfilePath); ok {
		fmt.Println(T("error_chrome_already_running"))
		return nil, fmt.Errorf("browser profile %s is in use by pid %d", config.Browser.ProfilePath, pid)
	}

	// Must be set before Bin()
	if config.Browser.ProfilePath != "" {
		d.launcher = d.launcher.UserDataDir(config.Browser.ProfilePath)
		logger.Debug("browser profile path set", "path", config.Browser.ProfilePath)
	}

	if chromePath, ok := launcher.LookPath(); ok {
		d.launcher = d.launcher.Bin(chromePath)
		logger.Debug("using system chrome", "path", chromePath)
	} else {
		fmt.Println(T("browser_chrome_not_found"))
	}

	u, err := d.launcher.Launch()
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "ProcessSingleton") || strings.Contains(msg, "SingletonLock") {
			fmt.Println(T("error_chrome_already_running"))
		}
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	d.browser = rod.New().ControlURL(u)
	if err := d.browser.Connect(); err != nil {
		d.launcher.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if config.Browser.Stealth {
		d.page, err = stealth.Page(d.browser)
	} else {
		d.page, err = d.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if config.Browser.UserAgent != "" {
		err = d.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: config.Browser.UserAgent,
		})
		if err != nil {
			logger.Warn("failed to set user agent", "error", err)
		}
	}

	fmt.Println(T("browser_launched"))
	return d, nil
}

func (d *rodDriver) Navigate(url string) error {
	if err := d.page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := d.page.WaitLoad(); err != nil {
		d.logger.Warn("page load wait failed", "url", url, "error", err)
	}
	return nil
}

func (d *rodDriver) CurrentURL() (string, error) {
	info, err := d.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *rodDriver) Reload() error {
	if err := d.page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := d.page.WaitLoad(); err != nil {
		d.logger.Warn("page load wait failed after reload", "error", err)
	}
	return nil
}

func (d *rodDriver) Cookies() ([]Cookie, error) {
	// nil urls means the current page's cookies
	raw, err := d.page.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		}
		if !c.Session && c.Expires > 0 {
			cookie.Expiry = float64(c.Expires)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

func (d *rodDriver) SetCookies(cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if exp, ok := normalizeExpiry(c.Expiry); ok {
			p.Expires = proto.TimeSinceEpoch(exp)
		}
		if p.Domain == "" {
			p.URL = d.config.BaseURL
		}
		params = append(params, p)
	}
	if err := d.page.SetCookies(params); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

func (d *rodDriver) Eval(js string, args ...interface{}) (gson.JSON, error) {
	res, err := d.page.Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

func (d *rodDriver) WaitElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := d.page.Context(ctx)

	var (
		el  *rod.Element
		err error
	)
	switch loc.By {
	case ByID:
		el, err = page.Element("#" + loc.Selector)
	case ByXPath:
		el, err = page.ElementX(loc.Selector)
	default:
		el, err = page.Element(loc.Selector)
	}
	if err != nil {
		return nil, err
	}
	// Detach from the wait deadline so Text/Click are not cut short.
	return rodElement{el.Context(context.Background())}, nil
}

func (d *rodDriver) Close() error {
	fmt.Println(T("cleaning_up"))

	if d.page != nil {
		d.page.Close()
	}
	if d.browser != nil {
		d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
	}

	fmt.Println(T("browser_destroyed"))
	return nil
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}
