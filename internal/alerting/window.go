package alerting

import (
	"sync"
	"time"
)

// maxWindowEvents caps a single window; when exceeded the oldest half is dropped.
const maxWindowEvents = 100000

// SlidingWindow counts events inside a trailing time window.
// Events must be recorded in non-decreasing time order.
type SlidingWindow struct {
	mu     sync.Mutex
	window time.Duration
	events []time.Time
}

// NewSlidingWindow creates a sliding window with the given duration.
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		window: window,
		events: make([]time.Time, 0, 16),
	}
}

// AddAt records an event at t and returns the count inside the window,
// including the new event.
func (w *SlidingWindow) AddAt(t time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(t)
	w.events = append(w.events, t)

	if len(w.events) > maxWindowEvents {
		w.events = w.events[len(w.events)/2:]
	}
	return len(w.events)
}

// CountAt returns the number of events inside the window ending at t.
func (w *SlidingWindow) CountAt(t time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(t)
	return len(w.events)
}

// pruneLocked drops events at or before now-window.
// Must be called with lock held.
func (w *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)

	// Binary search for the first event after cutoff
	left, right := 0, len(w.events)
	for left < right {
		mid := (left + right) / 2
		if !w.events[mid].After(cutoff) {
			left = mid + 1
		} else {
			right = mid
		}
	}

	if left > 0 {
		w.events = append(w.events[:0], w.events[left:]...)
	}
}

// Duration returns the configured window duration.
func (w *SlidingWindow) Duration() time.Duration {
	return w.window
}

// WindowManager keeps one sliding window per rule.
type WindowManager struct {
	mu      sync.Mutex
	windows map[string]*SlidingWindow
}

// NewWindowManager creates a new window manager.
func NewWindowManager() *WindowManager {
	return &WindowManager{
		windows: make(map[string]*SlidingWindow),
	}
}

// AddEventAt records an event for rule and returns the window count.
// A window whose duration changed is replaced.
func (wm *WindowManager) AddEventAt(rule string, window time.Duration, t time.Time) int {
	wm.mu.Lock()
	w, ok := wm.windows[rule]
	if !ok || w.Duration() != window {
		w = NewSlidingWindow(window)
		wm.windows[rule] = w
	}
	wm.mu.Unlock()

	return w.AddAt(t)
}

// CountAt returns the event count for rule at t, 0 if the rule has no window.
func (wm *WindowManager) CountAt(rule string, t time.Time) int {
	wm.mu.Lock()
	w, ok := wm.windows[rule]
	wm.mu.Unlock()

	if !ok {
		return 0
	}
	return w.CountAt(t)
}

// DeleteAll drops every window.
func (wm *WindowManager) DeleteAll() {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	wm.windows = make(map[string]*SlidingWindow)
}
