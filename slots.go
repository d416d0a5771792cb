package main

import (
	"context"
	"strings"
)

// slotStatusText returns the text of the slot selection status element.
func (w *Workflow) slotStatusText(ctx context.Context) (string, error) {
	return w.nav.elementText(ctx, w.config.Locators.Slots)
}

// slotsAvailable reports whether the slot page no longer shows the
// "no slots" marker.
func (w *Workflow) slotsAvailable(ctx context.Context) (bool, error) {
	text, err := w.slotStatusText(ctx)
	if err != nil {
		return false, err
	}
	return !strings.Contains(text, w.config.Patterns.NoSlots), nil
}
