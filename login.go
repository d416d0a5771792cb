package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrLoginTimeout = errors.New("timed out waiting for login")

func stripQuery(u string) string {
	before, _, _ := strings.Cut(u, "?")
	return before
}

func (w *Workflow) currentPage() string {
	u, err := w.driver.CurrentURL()
	if err != nil {
		w.logger.Debug("current url lookup failed", "error", err)
		return ""
	}
	return stripQuery(u)
}

// isLoggedIn guesses the login state from the current page.
func (w *Workflow) isLoggedIn(ctx context.Context) bool {
	switch w.currentPage() {
	case w.config.BaseURL:
		text, err := w.nav.elementText(ctx, w.config.Locators.Login)
		if err != nil {
			return false
		}
		return !strings.Contains(text, w.config.Patterns.NotLoggedIn)
	case w.config.AuthURL:
		return false
	default:
		// Any other page is assumed to be behind the login. An error page
		// on the retailer's domain is misread as logged in.
		return true
	}
}

// waitForAuth blocks until the user has logged in in the browser window,
// then stores the session. It alerts once per elapsed minute.
func (w *Workflow) waitForAuth(ctx context.Context, timeoutMinutes int) error {
	start := w.now()
	if w.isLoggedIn(ctx) {
		w.logger.Debug("already logged in")
		return nil
	}

	w.logger.Info("waiting for user login", "timeout_minutes", timeoutMinutes)
	fmt.Println(T("login_required"))

	timeout := time.Duration(timeoutMinutes) * time.Minute
	alerted := make(map[int]bool)
	for {
		if w.isLoggedIn(ctx) {
			w.logger.Info("logged in")
			return w.sessions.Save(ctx, w.driver)
		}

		elapsed := w.now().Sub(start)
		if elapsed > timeout {
			return fmt.Errorf("%w (>= %dmin)", ErrLoginTimeout, timeoutMinutes)
		}

		minute := int(elapsed / time.Minute)
		if !alerted[minute] {
			alerted[minute] = true
			w.notifier.Alert(ctx, T("alert_log_in"), "")
		}

		if err := w.sleep(ctx, w.config.Timing.LoginPollInterval); err != nil {
			return err
		}
	}
}
