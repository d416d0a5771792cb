package main

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitterDurationBounds(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	tests := []struct {
		base time.Duration
		pct  float64
	}{
		{time.Second, 20},
		{800 * time.Millisecond, 20},
		{25 * time.Second, 20},
		{time.Second, 0},
		{time.Second, 50},
	}

	for _, test := range tests {
		lo := time.Duration(float64(test.base) * (1 - test.pct/100))
		hi := time.Duration(float64(test.base) * (1 + test.pct/100))
		var sawLow, sawHigh bool
		for i := 0; i < 1000; i++ {
			d := jitterDuration(test.base, test.pct, r)
			if d < lo || d > hi {
				t.Fatalf("jitterDuration(%v, %v) = %v, expected between %v and %v", test.base, test.pct, d, lo, hi)
			}
			mid := test.base
			sawLow = sawLow || d <= mid
			sawHigh = sawHigh || d >= mid
		}
		assert.True(t, sawLow && sawHigh, "samples should spread around %v", test.base)
	}
}

func TestJitterSleeps(t *testing.T) {
	n := NewNavigator(newFakeDriver(testBaseURL), testConfig().Timing, newLoggerTo(&bytes.Buffer{}, false))

	start := time.Now()
	slept, err := n.jitter(context.Background(), 100*time.Millisecond, 20)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, slept, 80*time.Millisecond)
	assert.LessOrEqual(t, slept, 120*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, slept)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestJitterCancelled(t *testing.T) {
	n := NewNavigator(newFakeDriver(testBaseURL), testConfig().Timing, newLoggerTo(&bytes.Buffer{}, false))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := n.jitter(ctx, time.Minute, 20)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForElementTimeout(t *testing.T) {
	logs := &bytes.Buffer{}
	n := NewNavigator(newFakeDriver(testBaseURL), testConfig().Timing, newLoggerTo(logs, false))
	loc := Locator{By: ByID, Selector: "nav-cart"}

	_, err := n.getElement(context.Background(), loc, time.Second)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrElementTimeout))
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "nav-cart")
}

func TestWaitForElementCancelledIsNotTimeout(t *testing.T) {
	n := NewNavigator(newFakeDriver(testBaseURL), testConfig().Timing, newLoggerTo(&bytes.Buffer{}, false))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.getElement(ctx, Locator{By: ByID, Selector: "nav-cart"}, time.Second)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrElementTimeout))
}

func TestNavigateClicksAfterDelay(t *testing.T) {
	d := newFakeDriver(testBaseURL)
	loc := Locator{By: ByID, Selector: "subsContinueButton"}
	el := d.set(loc, "Continue")

	var slept []time.Duration
	timing := testConfig().Timing
	timing.ClickDelay = 800 * time.Millisecond
	n := NewNavigator(d, timing, newLoggerTo(&bytes.Buffer{}, false))
	n.sleeper = func(ctx context.Context, d time.Duration) error {
		assert.Zero(t, el.clicks, "click must come after the pause")
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, n.navigate(context.Background(), loc, 0))

	assert.Equal(t, 1, el.clicks)
	require.Len(t, slept, 1)
	assert.InDelta(t, float64(800*time.Millisecond), float64(slept[0]), float64(160*time.Millisecond))
}

func TestNavigateMissingElement(t *testing.T) {
	n := NewNavigator(newFakeDriver(testBaseURL), testConfig().Timing, newLoggerTo(&bytes.Buffer{}, false))
	n.sleeper = func(ctx context.Context, d time.Duration) error {
		t.Fatal("should not pause when the element is missing")
		return nil
	}

	err := n.navigate(context.Background(), Locator{By: ByID, Selector: "nav-cart"}, 0)
	assert.ErrorIs(t, err, ErrElementTimeout)
}
