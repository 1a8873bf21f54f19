package model

import "time"

// NormalizeWindow collapses empty windows to nil so that "no window" and a
// window with both sides open share the same cache key.
func NormalizeWindow(w *Window) *Window {
	if w == nil || (w.From == nil && w.To == nil) {
		return nil
	}
	return &Window{From: w.From, To: w.To}
}

// WindowKey is the canonical cache key for a window: "all-time" when
// unbounded, otherwise "<fromISO|start>|<toISO|end>".
func WindowKey(w *Window) string {
	if w == nil || (w.From == nil && w.To == nil) {
		return "all-time"
	}
	from, to := "start", "end"
	if w.From != nil {
		from = w.From.UTC().Format(time.RFC3339)
	}
	if w.To != nil {
		to = w.To.UTC().Format(time.RFC3339)
	}
	return from + "|" + to
}
