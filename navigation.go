package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

var ErrElementTimeout = errors.New("timed out waiting for element")

// Navigator finds and clicks page elements with human-ish pacing.
type Navigator struct {
	driver  Driver
	timing  TimingConfig
	logger  *slog.Logger
	rand    *rand.Rand
	sleeper func(ctx context.Context, d time.Duration) error
}

func NewNavigator(driver Driver, timing TimingConfig, logger *slog.Logger) *Navigator {
	return &Navigator{
		driver:  driver,
		timing:  timing,
		logger:  logger,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleeper: sleepContext,
	}
}

// waitForElement waits up to timeout for loc to be present. A zero timeout
// means the configured element timeout.
func (n *Navigator) waitForElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	if timeout <= 0 {
		timeout = n.timing.ElementTimeout
	}
	el, err := n.driver.WaitElement(ctx, loc, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			n.logger.Error("timed out waiting for target element", "locator", loc.String(), "timeout", timeout)
			return nil, fmt.Errorf("%w: %s", ErrElementTimeout, loc)
		}
		return nil, err
	}
	return el, nil
}

func (n *Navigator) getElement(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	return n.waitForElement(ctx, loc, timeout)
}

// elementText returns the text of the element matched by loc.
func (n *Navigator) elementText(ctx context.Context, loc Locator) (string, error) {
	el, err := n.getElement(ctx, loc, 0)
	if err != nil {
		return "", err
	}
	return el.Text()
}

// navigate clicks loc after a short jittered pause.
func (n *Navigator) navigate(ctx context.Context, loc Locator, timeout time.Duration) error {
	n.logger.Info("navigating via locator", "locator", loc.String())
	el, err := n.getElement(ctx, loc, timeout)
	if err != nil {
		return err
	}
	if _, err := n.jitter(ctx, n.timing.ClickDelay, n.timing.JitterPct); err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// jitter sleeps for base perturbed by up to pct percent either way and
// returns how long it slept.
func (n *Navigator) jitter(ctx context.Context, base time.Duration, pct float64) (time.Duration, error) {
	d := jitterDuration(base, pct, n.rand)
	return d, n.sleeper(ctx, d)
}

// jitterDuration draws uniformly from [base*(1-pct/100), base*(1+pct/100)].
func jitterDuration(base time.Duration, pct float64, r *rand.Rand) time.Duration {
	lo := float64(base) * (1 - pct/100)
	hi := float64(base) * (1 + pct/100)
	return time.Duration(lo + r.Float64()*(hi-lo))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
