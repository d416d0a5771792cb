package main

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ysmood/gson"
)

const (
	testBaseURL = "https://example.com/"
	testAuthURL = "https://example.com/ap/signin"
)

type fakeElement struct {
	text    string
	onClick func()
	clicks  int
}

func (e *fakeElement) Text() (string, error) { return e.text, nil }

func (e *fakeElement) Click() error {
	e.clicks++
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

// fakeDriver is an in-memory browser: a current URL, a set of present
// elements, cookies and the two storage areas.
type fakeDriver struct {
	url      string
	elements map[Locator]*fakeElement
	// missing makes an element time out for its first n lookups.
	missing map[Locator]int

	cookies []Cookie
	storage map[string]map[string]string

	navigations []string
	reloads     int
	onReload    func(d *fakeDriver)
	setCookies  [][]Cookie
	closed      bool
	events      *[]string
}

func newFakeDriver(url string) *fakeDriver {
	return &fakeDriver{
		url:      url,
		elements: make(map[Locator]*fakeElement),
		missing:  make(map[Locator]int),
		storage: map[string]map[string]string{
			"local":   {},
			"session": {},
		},
	}
}

func (d *fakeDriver) record(event string) {
	if d.events != nil {
		*d.events = append(*d.events, event)
	}
}

func (d *fakeDriver) set(loc Locator, text string) *fakeElement {
	el := &fakeElement{text: text}
	d.elements[loc] = el
	return el
}

func (d *fakeDriver) Navigate(url string) error {
	d.navigations = append(d.navigations, url)
	d.url = url
	d.record("navigate " + url)
	return nil
}

func (d *fakeDriver) CurrentURL() (string, error) { return d.url, nil }

func (d *fakeDriver) Reload() error {
	d.reloads++
	d.record("reload")
	if d.onReload != nil {
		d.onReload(d)
	}
	return nil
}

func (d *fakeDriver) Cookies() ([]Cookie, error) {
	return append([]Cookie(nil), d.cookies...), nil
}

func (d *fakeDriver) SetCookies(cookies []Cookie) error {
	d.setCookies = append(d.setCookies, cookies)
	d.cookies = append(d.cookies, cookies...)
	d.record("set cookies")
	return nil
}

func (d *fakeDriver) Eval(js string, args ...interface{}) (gson.JSON, error) {
	switch len(args) {
	case 1:
		area := args[0].(string)
		out := make(map[string]interface{})
		for k, v := range d.storage[area] {
			out[k] = v
		}
		return gson.New(out), nil
	case 3:
		area, k, v := args[0].(string), args[1].(string), args[2].(string)
		if d.storage[area] == nil {
			d.storage[area] = map[string]string{}
		}
		d.storage[area][k] = v
		return gson.New(nil), nil
	default:
		return gson.JSON{}, fmt.Errorf("unexpected eval with %d args", len(args))
	}
}

func (d *fakeDriver) WaitElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	if n := d.missing[loc]; n > 0 {
		d.missing[loc] = n - 1
		return nil, fmt.Errorf("wait %s: %w", loc, context.DeadlineExceeded)
	}
	el, ok := d.elements[loc]
	if !ok {
		return nil, fmt.Errorf("wait %s: %w", loc, context.DeadlineExceeded)
	}
	return el, nil
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}

type notification struct {
	kind  string
	msg   string
	sound string
}

type fakeNotifier struct {
	sent   []notification
	events *[]string
}

func (n *fakeNotifier) add(kind, msg, sound string) {
	n.sent = append(n.sent, notification{kind: kind, msg: msg, sound: sound})
	if n.events != nil {
		*n.events = append(*n.events, kind+" "+msg)
	}
}

func (n *fakeNotifier) Alert(ctx context.Context, msg, sound string) {
	n.add("alert", msg, sound)
}

func (n *fakeNotifier) Annoy(ctx context.Context) {
	n.add("annoy", "", "")
}

func (n *fakeNotifier) SMS(ctx context.Context, msg string) {
	n.add("sms", msg, "")
}

func (n *fakeNotifier) Chat(ctx context.Context, msg string) {
	n.add("chat", msg, "")
}

func (n *fakeNotifier) Email(ctx context.Context, subject, body string) {
	n.add("email", body, "")
}

func (n *fakeNotifier) count(kind string) int {
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

// memBackend keeps a snapshot in memory.
type memBackend struct {
	snap   *Snapshot
	writes int
}

func (b *memBackend) Describe() string { return "memory" }

func (b *memBackend) Exists(ctx context.Context) (bool, error) { return b.snap != nil, nil }

func (b *memBackend) Read(ctx context.Context) (*Snapshot, error) {
	if b.snap == nil {
		return nil, ErrSessionNotFound
	}
	return b.snap, nil
}

func (b *memBackend) Write(ctx context.Context, s *Snapshot) error {
	b.writes++
	b.snap = s
	return nil
}

// fakeClock advances only when slept on.
type fakeClock struct {
	t      time.Time
	slept  []time.Duration
	onTick func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	if c.onTick != nil {
		c.onTick(len(c.slept))
	}
	return nil
}

func testConfig() *Config {
	config := DefaultConfig()
	config.BaseURL = testBaseURL
	config.AuthURL = testAuthURL
	config.Timing.ElementTimeout = 10 * time.Millisecond
	config.Timing.ClickDelay = time.Millisecond
	config.Timing.PollInterval = 25 * time.Second
	config.Timing.LoginPollInterval = time.Second
	return config
}

type testRig struct {
	config   *Config
	driver   *fakeDriver
	notifier *fakeNotifier
	backend  *memBackend
	clock    *fakeClock
	logs     *bytes.Buffer
	workflow *Workflow
	events   []string
}

func newTestRig(t *testing.T, startURL string) *testRig {
	t.Helper()

	r := &testRig{
		config:   testConfig(),
		driver:   newFakeDriver(startURL),
		notifier: &fakeNotifier{},
		backend:  &memBackend{},
		clock:    newFakeClock(),
		logs:     &bytes.Buffer{},
	}
	r.driver.events = &r.events
	r.notifier.events = &r.events

	logger := newLoggerTo(r.logs, true)
	r.workflow = NewWorkflow(r.config, r.driver, NewSessionStore(r.backend, logger), r.notifier, logger)
	r.workflow.now = r.clock.Now
	r.workflow.sleep = r.clock.Sleep
	r.workflow.nav.sleeper = r.clock.Sleep
	return r
}

// logIn puts the fake browser on the home page with a greeting that does
// not contain the "not logged in" marker.
func (r *testRig) logIn() {
	r.driver.url = r.config.BaseURL
	r.driver.set(r.config.Locators.Login, "Hello, Jane\nAccount & Lists")
	r.driver.cookies = []Cookie{{Name: "session-id", Value: "123-456", Domain: ".example.com", Path: "/", Expiry: 1.7e9}}
}

// checkoutPath makes every navigation step present.
func (r *testRig) checkoutPath() {
	for _, loc := range r.workflow.checkoutSteps() {
		r.driver.set(loc, "")
	}
}
