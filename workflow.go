package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NavOutcome is the result of trying to reach the slot selection page.
type NavOutcome int

const (
	NavSuccess NavOutcome = iota
	NavElementTimeout
)

func (o NavOutcome) String() string {
	switch o {
	case NavSuccess:
		return "success"
	case NavElementTimeout:
		return "element timeout"
	default:
		return fmt.Sprintf("NavOutcome(%d)", int(o))
	}
}

// Workflow drives one browser from login to a found delivery slot.
type Workflow struct {
	config   *Config
	driver   Driver
	nav      *Navigator
	sessions *SessionStore
	notifier Notifier
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWorkflow(config *Config, driver Driver, sessions *SessionStore, notifier Notifier, logger *slog.Logger) *Workflow {
	return &Workflow{
		config:   config,
		driver:   driver,
		nav:      NewNavigator(driver, config.Timing, logger),
		sessions: sessions,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Run executes the whole workflow. The browser is not closed here; the
// caller owns the driver.
func (w *Workflow) Run(ctx context.Context, forceLogin bool) error {
	w.logger.Info("navigating to base url", "url", w.config.BaseURL)
	if err := w.driver.Navigate(w.config.BaseURL); err != nil {
		return err
	}

	if err := w.restoreSession(ctx, forceLogin); err != nil {
		return err
	}

	if err := w.reachSlotSelect(ctx); err != nil {
		return err
	}

	if err := w.pollSlots(ctx); err != nil {
		return err
	}

	w.holdForCheckout(ctx)
	return nil
}

// restoreSession logs in from the stored snapshot, falling back to waiting
// for a manual login.
func (w *Workflow) restoreSession(ctx context.Context, forceLogin bool) error {
	timeout := w.config.Timing.LoginTimeoutMinutes

	exists, err := w.sessions.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check stored session: %w", err)
	}
	if forceLogin || !exists {
		return w.waitForAuth(ctx, timeout)
	}

	if err := w.sessions.Load(ctx, w.driver); err != nil {
		return fmt.Errorf("load stored session: %w", err)
	}
	if err := w.driver.Reload(); err != nil {
		return err
	}
	if w.isLoggedIn(ctx) {
		w.logger.Info("successfully logged in via stored session")
		return nil
	}
	w.logger.Error("error logging in with stored session")
	return w.waitForAuth(ctx, timeout)
}

// reachSlotSelect navigates to slot selection, re-authenticating and
// retrying once when an element never shows up on a login-ish page.
func (w *Workflow) reachSlotSelect(ctx context.Context) error {
	outcome, err := w.navigateToSlotSelect(ctx)
	if err != nil {
		return err
	}
	if outcome == NavSuccess {
		return nil
	}

	page := w.currentPage()
	if page != w.config.BaseURL && page != w.config.AuthURL {
		w.logger.Error("navigation failed", "url", page)
		return fmt.Errorf("navigation failed at %s: %w", page, ErrElementTimeout)
	}

	if err := w.waitForAuth(ctx, w.config.Timing.LoginTimeoutMinutes); err != nil {
		return err
	}
	outcome, err = w.navigateToSlotSelect(ctx)
	if err != nil {
		return err
	}
	if outcome != NavSuccess {
		w.logger.Error("navigation failed after re-authenticating", "url", w.currentPage())
		return fmt.Errorf("navigation failed after re-authenticating: %w", ErrElementTimeout)
	}
	return nil
}

// navigateToSlotSelect walks cart -> checkout -> continue -> subscription
// continue. Element timeouts come back as NavElementTimeout; other errors
// are returned as is.
func (w *Workflow) navigateToSlotSelect(ctx context.Context) (NavOutcome, error) {
	w.logger.Info("navigating to delivery slot selection")
	if w.currentPage() != w.config.BaseURL {
		w.logger.Info("going home first")
		if err := w.driver.Navigate(w.config.BaseURL); err != nil {
			return NavSuccess, err
		}
	}

	for _, loc := range w.checkoutSteps() {
		if err := w.nav.navigate(ctx, loc, 0); err != nil {
			if errors.Is(err, ErrElementTimeout) {
				return NavElementTimeout, nil
			}
			return NavSuccess, err
		}
	}
	return NavSuccess, nil
}

func (w *Workflow) checkoutSteps() []Locator {
	l := w.config.Locators
	return []Locator{
		l.Cart,
		{By: ByXPath, Selector: fmt.Sprintf("//*[contains(text(),'%s')]/..", w.config.Patterns.CheckoutLink)},
		l.ContinueButton,
		l.SubsContinue,
	}
}

// pollSlots returns once delivery slots are offered. There is no cap on
// the number of polls.
func (w *Workflow) pollSlots(ctx context.Context) error {
	available, err := w.slotsAvailable(ctx)
	if err != nil {
		return err
	}
	if available {
		w.notifier.Annoy(ctx)
		w.notifier.Alert(ctx, T("alert_slots_already_available"), "Sosumi")
		return nil
	}

	for polls := 1; ; polls++ {
		w.logger.Info("no slots found, waiting", "polls", polls)
		if _, err := w.nav.jitter(ctx, w.config.Timing.PollInterval, w.config.Timing.JitterPct); err != nil {
			return err
		}
		if err := w.driver.Reload(); err != nil {
			return err
		}

		available, err := w.slotsAvailable(ctx)
		if err != nil {
			return err
		}
		if !available {
			continue
		}

		w.notifier.Alert(ctx, T("alert_slots_found"), "")
		text, err := w.slotStatusText(ctx)
		if err != nil {
			return err
		}
		w.notifier.SMS(ctx, text)
		w.notifier.Chat(ctx, text)
		w.notifier.Email(ctx, T("alert_slots_found"), text)
		return nil
	}
}

// holdForCheckout keeps the browser open so the operator can check out by
// hand. Cancellation ends the hold early and is not an error.
func (w *Workflow) holdForCheckout(ctx context.Context) {
	fmt.Println(T("checkout_hold", w.config.Timing.CheckoutGracePeriod))
	if err := w.sleep(ctx, w.config.Timing.CheckoutGracePeriod); err != nil {
		w.logger.Warn("slumber disturbed", "error", err)
	}
}
